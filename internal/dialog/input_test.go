package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/ledger"
)

func TestParseToken(t *testing.T) {
	tests := map[string]Input{
		"VALID|Yes":                     Validate{Accept: true},
		"MULTIPLE|No":                   ChooseMultiplicity{Multiple: false},
		"SCOPE|Personal":                ChooseScope{Scope: ledger.ScopePersonal},
		"CAT|🏠 Casa":                    ChooseCategory{Name: "🏠 Casa"},
		"SUBCAT|[Bolsillo] Seguro Gatos": ChooseSubcategory{Name: "[Bolsillo] Seguro Gatos"},
		"ACTION|Ahorro":                 ChooseKind{Kind: ledger.KindSavings},
		"CONFIRM|SAVE":                  Confirm{Action: ConfirmSave},
		"AMOUNT|REST":                   UseRemaining{},
	}
	for token, want := range tests {
		got, err := ParseToken(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got)
		assert.Equal(t, token, Token(got))
		assert.True(t, IsToken(token))
	}
}

func TestParseTokenRejects(t *testing.T) {
	for _, token := range []string{"", "VALID", "VALID|Maybe", "SCOPE|Empresa", "FIJO|ACCEPT", "CONFIRM|NOPE", "ACTION|Robo"} {
		_, err := ParseToken(token)
		assert.ErrorIs(t, err, ErrUnknownToken, token)
	}
	assert.False(t, IsToken("FIJO|ACCEPT"))
	assert.Empty(t, Token(EnterAmount{Raw: "5"}))
}
