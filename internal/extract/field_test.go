package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailFixture = `<html><body>
<div id="content">
  <div class="legislation-heading"><h3>[2100001] 도로교통법 일부개정법률안 (홍길동의원 등 10인)</h3></div>
  <table>
    <tr><th>의안번호</th><td> 2100001 </td></tr>
    <tr><th>제안자</th><td>홍길동의원   등 10인</td></tr>
    <tr><th>소관위원회</th><td></td></tr>
  </table>
  <a class="out" href=" https://example.com/bill/1 ">link</a>
  <div class="short">내용</div>
  <div class="summary">제안이유 및 주요내용 이 법안은 도로 안전을 강화하기 위하여 여러 조항을 개정하려는 것으로 충분히 긴 설명을 포함합니다</div>
</div>
</body></html>`

func parseFixture(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := ParseHTML([]byte(html))
	require.NoError(t, err)
	return doc
}

func TestFieldExtractFallbacks(t *testing.T) {
	t.Parallel()

	doc := parseFixture(t, detailFixture)

	billID := Field{Name: "bill_id", Missing: "(없음)", Locators: []Locator{
		LabeledCell{Match: LabelAny("의안번호", "안건번호")},
	}}
	assert.Equal(t, "2100001", billID.Extract(doc))

	proposer := Field{Name: "proposer", Missing: "(제안자 없음)", Locators: []Locator{
		Selector("#missing"),
		LabeledCell{Match: LabelAny("제안자", "발의자")},
	}}
	assert.Equal(t, "홍길동의원 등 10인", proposer.Extract(doc))

	title := Field{Name: "title", Missing: "(제목 없음)", Locators: []Locator{
		Transform{Locator: Selector("#content > div.legislation-heading > h3"), Fn: func(s string) string {
			if _, after, ok := strings.Cut(s, "]"); ok {
				s = after
			}
			return CutBefore("(")(s)
		}},
	}}
	assert.Equal(t, "도로교통법 일부개정법률안", title.Extract(doc))

	link := Field{Name: "link", Locators: []Locator{Attr{Selector: "a.out", Name: "href"}}}
	assert.Equal(t, "https://example.com/bill/1", link.Extract(doc))
}

func TestFieldExtractReturnsSentinel(t *testing.T) {
	t.Parallel()

	doc := parseFixture(t, detailFixture)

	committee := Field{Name: "committee", Missing: "(소관위 없음)", Locators: []Locator{
		LabeledCell{Match: LabelAny("소관위", "위원회")},
		Selector("td.td_block"),
		Attr{Selector: "a.out", Name: "data-missing"},
		nil,
	}}
	assert.Equal(t, "(소관위 없음)", committee.Extract(doc))

	assert.Equal(t, "x", Field{Missing: "x"}.Extract(doc))
	assert.Equal(t, "x", Field{Missing: "x", Locators: []Locator{Selector("h3")}}.Extract(nil))
}

func TestFieldExtractOddMarkup(t *testing.T) {
	t.Parallel()

	doc := parseFixture(t, "<table><tr><td>only one cell</td></tr><tr></tr></table><<>>")
	f := Field{Missing: "none", Locators: []Locator{
		LabeledCell{Match: LabelAny("only")},
		LabeledCell{},
		KeywordBlock{MinRunes: 50, Keywords: []string{"내용"}},
		Transform{},
	}}
	assert.Equal(t, "none", f.Extract(doc))
	assert.False(t, f.Found(f.Extract(doc)))
}

func TestKeywordBlock(t *testing.T) {
	t.Parallel()

	doc := parseFixture(t, detailFixture)
	v, ok := KeywordBlock{Selector: "div.short, div.summary", MinRunes: 50, Keywords: []string{"내용", "요약", "개요"}}.TryExtract(doc)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(v, "제안이유 및 주요내용"))
}

func TestLabelMatchers(t *testing.T) {
	t.Parallel()

	period := LabelAll("게시", "기간")
	assert.True(t, period("게시 기간"))
	assert.True(t, period("입법예고 게시기간"))
	assert.False(t, period("게시일"))
	assert.False(t, LabelAll()("anything"))

	assert.True(t, LabelAny("위원회")("소관위원회"))
	assert.False(t, LabelAny()("소관위원회"))
}

func TestCollapseSpace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", CollapseSpace("  a\n\t b   c "))
	assert.Equal(t, "", CollapseSpace(" \n "))
}
