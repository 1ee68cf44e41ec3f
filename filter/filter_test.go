package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rssbus/domain"
)

func TestApplyAllMode(t *testing.T) {
	article := &domain.Article{Title: "anything"}

	result := Apply(article, domain.FilterSpec{})
	assert.True(t, result.Include)

	result = Apply(article, domain.FilterSpec{Mode: domain.FilterAll, Keywords: []string{"ignored"}})
	assert.True(t, result.Include)
}

func TestApplyIncludeMode(t *testing.T) {
	tests := []struct {
		name    string
		article domain.Article
		spec    domain.FilterSpec
		include bool
		matched []string
	}{
		{
			name:    "keyword in title",
			article: domain.Article{Title: "Central bank raises rates", Description: "quarterly review"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"rates"}},
			include: true,
			matched: []string{"rates"},
		},
		{
			name:    "keyword in description",
			article: domain.Article{Title: "Morning digest", Description: "election results expected"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"election"}},
			include: true,
			matched: []string{"election"},
		},
		{
			name:    "case insensitive by default",
			article: domain.Article{Title: "BREAKING: Merger Announced"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"merger"}},
			include: true,
			matched: []string{"merger"},
		},
		{
			name:    "cyrillic keywords",
			article: domain.Article{Title: "ЦБ повысил ключевую ставку", Description: "решение совета директоров"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"ставку"}},
			include: true,
			matched: []string{"ставку"},
		},
		{
			name:    "substring match inside word",
			article: domain.Article{Title: "Spacecraft docking successful"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"craft"}},
			include: true,
			matched: []string{"craft"},
		},
		{
			name:    "no keyword present",
			article: domain.Article{Title: "Weather update", Description: "sunny"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"storm"}},
			include: false,
		},
		{
			name:    "min matches not reached",
			article: domain.Article{Title: "Budget vote today"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"budget", "vote", "strike"}, MinMatches: 3},
			include: false,
			matched: []string{"budget", "vote"},
		},
		{
			name:    "min matches reached",
			article: domain.Article{Title: "Budget vote strike looms"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"budget", "vote", "strike"}, MinMatches: 3},
			include: true,
			matched: []string{"budget", "vote", "strike"},
		},
		{
			name:    "content excluded unless listed in fields",
			article: domain.Article{Title: "Plain title", Content: "hidden election details"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"election"}},
			include: false,
		},
		{
			name:    "content searched when listed",
			article: domain.Article{Title: "Plain title", Content: "hidden election details"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"election"}, Fields: []string{"content"}},
			include: true,
			matched: []string{"election"},
		},
		{
			name:    "case sensitive match respected",
			article: domain.Article{Title: "NASA launches probe"},
			spec:    domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"nasa"}, CaseSensitive: true},
			include: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Apply(&tt.article, tt.spec)
			assert.Equal(t, tt.include, result.Include)
			assert.Equal(t, tt.matched, result.Matched)
		})
	}
}

func TestApplyExcludeMode(t *testing.T) {
	spec := domain.FilterSpec{Mode: domain.FilterExclude, Keywords: []string{"advert", "promo"}}

	blocked := Apply(&domain.Article{Title: "Huge promo weekend"}, spec)
	assert.False(t, blocked.Include)
	assert.Equal(t, []string{"promo"}, blocked.Matched)

	passed := Apply(&domain.Article{Title: "Parliament session opens"}, spec)
	assert.True(t, passed.Include)
	assert.Empty(t, passed.Matched)
}

func TestApplyUnknownModePassesThrough(t *testing.T) {
	result := Apply(&domain.Article{Title: "anything"}, domain.FilterSpec{Mode: "sideways"})
	assert.True(t, result.Include)
}
