package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections(t *testing.T) {
	text := "### زنجبیل (Zingiber officinale)\n### خواص درمانی\nضد التهاب، ضد درد\n### ایمنی و سمیت\nبسیار کم\n\n_منبع: تحقیقات دانشگاه تهران_"

	blocks := Parse(text)
	require.Len(t, blocks, 3)

	assert.Equal(t, "زنجبیل (Zingiber officinale)", blocks[0].Heading)
	assert.Empty(t, blocks[0].Body)

	assert.Equal(t, "خواص درمانی", blocks[1].Heading)
	require.Len(t, blocks[1].Body, 1)
	assert.Equal(t, "ضد التهاب، ضد درد", blocks[1].Body[0].Text)
}

func TestParseIntroBeforeFirstMarker(t *testing.T) {
	blocks := Parse("یک مقدمه کوتاه\n### جزئیات\nمتن بدنه")
	require.Len(t, blocks, 2)

	assert.Empty(t, blocks[0].Heading, "leading segment is intro text, not a heading")
	require.Len(t, blocks[0].Body, 1)
	assert.Equal(t, "یک مقدمه کوتاه", blocks[0].Body[0].Text)
	assert.Equal(t, "جزئیات", blocks[1].Heading)
}

func TestParsePlainTextIsSingleIntroBlock(t *testing.T) {
	blocks := Parse("پاسخ ساده بدون بخش‌بندی")
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Heading)
}

func TestParseBoldSpans(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Span
	}{
		{
			name:  "bold in the middle",
			input: "مصرف **زیاد** خطرناک است",
			want:  []Span{{Text: "مصرف "}, {Text: "زیاد", Bold: true}, {Text: " خطرناک است"}},
		},
		{
			name:  "entirely bold",
			input: "**هشدار**",
			want:  []Span{{Text: "هشدار", Bold: true}},
		},
		{
			name:  "unmatched marker stays literal",
			input: "یک ** تنها",
			want:  []Span{{Text: "یک ** تنها"}},
		},
		{
			name:  "no markup",
			input: "متن ساده",
			want:  []Span{{Text: "متن ساده"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSpans(tt.input))
		})
	}
}

func TestParseStripsAsterisksFromHeadings(t *testing.T) {
	blocks := Parse("### **عنوان مهم**\nبدنه")
	require.Len(t, blocks, 1)
	assert.Equal(t, "عنوان مهم", blocks[0].Heading)
}

func TestParseSkipsBlankSections(t *testing.T) {
	blocks := Parse("###\n### عنوان\nمتن")
	require.Len(t, blocks, 1)
	assert.Equal(t, "عنوان", blocks[0].Heading)
}
