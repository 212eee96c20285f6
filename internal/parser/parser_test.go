package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParse_FixturePage(t *testing.T) {
	t.Parallel()

	p := New(Config{BaseURL: DefaultBaseURL})
	got := p.Parse(loadFixture(t, "re12.html"))

	require.Equal(t, "학생식당", got.Restaurant)
	require.Equal(t, "2025.03.04", got.Date)
	require.Equal(t, "화요일", got.DayOfWeek)

	require.Empty(t, got.Breakfast, "placeholder block must not produce an item")
	require.Empty(t, got.Dinner, "closure notice must not produce an item")

	require.Len(t, got.Lunch, 2)
	require.Equal(t, menu.MenuItem{
		Dishes:   []string{"스팸마요덮밥", "김치"},
		Tags:     []string{"중식A"},
		Price:    "4,500",
		ImageURL: "https://www.hanyang.ac.kr/web/www/re12/food/lunch-a.jpg",
	}, got.Lunch[0])
	require.Equal(t, menu.MenuItem{
		Dishes:   []string{"돈까스", "우동", "단무지"},
		Tags:     []string{"중식B", "특식"},
		Price:    "5,000",
		ImageURL: "https://cdn.example.com/lunch-b.jpg",
	}, got.Lunch[1])
}

func TestParse_IsDeterministic(t *testing.T) {
	t.Parallel()

	p := New(Config{BaseURL: DefaultBaseURL})
	html := loadFixture(t, "re12.html")
	require.Equal(t, p.Parse(html), p.Parse(html))
}

func TestParse_MissingMarkersYieldsEmptyMenu(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	for _, html := range []string{
		"",
		"<html><body><p>점검 중</p></body></html>",
		"<div><h4 class=\"d-title2\">간식</h4><div class=\"bbs\"></div>",
		"<<<not html>>>",
	} {
		got := p.Parse(html)
		require.Empty(t, got.Restaurant)
		require.Empty(t, got.Date)
		require.Empty(t, got.DayOfWeek)
		require.Empty(t, got.Breakfast)
		require.Empty(t, got.Lunch)
		require.Empty(t, got.Dinner)
		require.NotNil(t, got.Lunch)
	}
}

func TestParse_DuplicateItemsKeepFirst(t *testing.T) {
	t.Parallel()

	html := `<div>
<h4 class="d-title2">석식</h4>
<div class="bbs"><ul class="thumbnails">
  <li class="span3"><h3>제육볶음	된장국</h3><p class="price">5,000</p></li>
  <li class="span3"><h3>[석식]제육볶음	된장국</h3><p class="price">6,000</p></li>
  <li class="span3"><h3>된장국	제육볶음</h3></li>
</ul></div></div>`

	got := New(Config{}).Parse(html)
	require.Len(t, got.Dinner, 2)
	require.Equal(t, "5,000", got.Dinner[0].Price)
	require.Empty(t, got.Dinner[0].Tags)
	require.Equal(t, []string{"된장국", "제육볶음"}, got.Dinner[1].Dishes)
}

func TestParse_RelativeImageWithoutBaseIsKept(t *testing.T) {
	t.Parallel()

	html := `<div><h4 class="d-title2">조식</h4>
<div class="bbs"><ul class="thumbnails"><li class="span3">
<img src="/img/a.jpg"><h3>토스트	우유</h3></li></ul></div></div>`

	got := New(Config{}).Parse(html)
	require.Len(t, got.Breakfast, 1)
	require.Equal(t, "/img/a.jpg", got.Breakfast[0].ImageURL)
}

func TestBuildItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   menu.MenuItem
		wantOK bool
	}{
		{
			name:   "tab rule wins over lower priority rules",
			raw:    "[중식A]스팸마요덮밥\t김치",
			want:   menu.MenuItem{Dishes: []string{"스팸마요덮밥", "김치"}, Tags: []string{"중식A"}},
			wantOK: true,
		},
		{name: "empty", raw: "   "},
		{name: "placeholder", raw: "-"},
		{name: "closure notice", raw: "금일 휴무"},
		{name: "holiday notice", raw: "추석연휴"},
		{name: "tags only", raw: "[중식A][특식]"},
		{name: "mostly single characters", raw: "밥 국 김치"},
		{
			name:   "single dish",
			raw:    "[조식]토스트",
			want:   menu.MenuItem{Dishes: []string{"토스트"}, Tags: []string{"조식"}},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := BuildItem(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.Equal(t, tt.want, got)
			}
		})
	}
}
