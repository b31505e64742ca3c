package catalog

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-app/internal/apperr"
)

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("  Portrait ")
	assert.True(t, ok)
	assert.Equal(t, CategoryPortrait, c)

	c, ok = ParseCategory("3d ART")
	assert.True(t, ok)
	assert.Equal(t, Category3DArt, c)

	_, ok = ParseCategory("sculpture")
	assert.False(t, ok)
}

func TestFields_Normalize(t *testing.T) {
	cases := map[string]struct {
		fields    Fields
		expectErr bool
	}{
		"valid": {
			fields: Fields{Title: " Storm ", Artist: "Ada", Price: decimal.NewFromInt(100), Category: "PORTRAIT"},
		},
		"zero price allowed": {
			fields: Fields{Title: "Free", Artist: "Ada", Price: decimal.Zero, Category: CategoryOther},
		},
		"negative price": {
			fields:    Fields{Title: "Storm", Artist: "Ada", Price: decimal.NewFromInt(-1), Category: CategoryOther},
			expectErr: true,
		},
		"empty title": {
			fields:    Fields{Title: "   ", Artist: "Ada", Price: decimal.NewFromInt(1), Category: CategoryOther},
			expectErr: true,
		},
		"empty artist": {
			fields:    Fields{Title: "Storm", Price: decimal.NewFromInt(1), Category: CategoryOther},
			expectErr: true,
		},
		"unknown category": {
			fields:    Fields{Title: "Storm", Artist: "Ada", Price: decimal.NewFromInt(1), Category: "sculpture"},
			expectErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.fields.Normalize()
			if tc.expectErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.fields.Category.Valid())
		})
	}
}

func TestPatch_NormalizeAndUpdates(t *testing.T) {
	title := "  New title "
	price := decimal.NewFromInt(250)
	cat := Category("landscape")
	p := Patch{Title: &title, Price: &price, Category: &cat}

	require.NoError(t, p.Normalize())
	u := p.Updates()
	assert.Equal(t, "New title", u["title"])
	assert.Equal(t, price, u["price"])
	assert.Equal(t, CategoryLandscape, u["category"])
	assert.NotContains(t, u, "artist")

	blank := " "
	assert.Error(t, (&Patch{Artist: &blank}).Normalize())

	neg := decimal.NewFromInt(-5)
	assert.Error(t, (&Patch{Price: &neg}).Normalize())
}
