package core

import "errors"

// ErrEmptyResponse indicates the model answered without any usable text.
var ErrEmptyResponse = errors.New("model returned no text")

// NotPlantDataError is returned by extraction when the model decided the
// uploaded media contains no medicinal-plant information. Message is the
// model's own explanation, suitable for showing to the user.
type NotPlantDataError struct {
	Message string
}

func (e *NotPlantDataError) Error() string {
	return "no plant data found: " + e.Message
}
