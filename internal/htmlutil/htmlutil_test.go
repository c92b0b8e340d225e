package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<div id="a">
			Intro   to
			<b>X</b>&nbsp;
		</div>
		<div id="empty"></div>
	`))
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, "Intro to X", CleanText(doc.Find("#a")))
	require.Equal(t, "", CleanText(doc.Find("#empty")))
	require.Equal(t, "", CleanText(doc.Find("#missing")))
}

func TestFirstClass(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<table>
			<tr id="one" class="GridRow odd"><td></td></tr>
			<tr id="two" class="  "><td></td></tr>
			<tr id="three"><td></td></tr>
		</table>
	`))
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, "GridRow", FirstClass(doc.Find("#one")))
	require.Equal(t, "", FirstClass(doc.Find("#two")))
	require.Equal(t, "", FirstClass(doc.Find("#three")))
}
