package dialog

import (
	"fmt"
	"strings"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

const (
	textDeclined  = "❌ Transacción ignorada."
	textCancelled = "❌ Registro cancelado. No se guardó nada."
	textSaving    = "⏳ Guardando..."
	textExpired   = "⚠️ Esta sesión expiró o ya fue procesada."

	noticeInvalidAmount = "⚠️ \"%s\" no es un monto válido. Ejemplos: 15000, 15k, $15.000"
	noticeOverAssigned  = "⚠️ El monto %s supera el total. Se descartó esa parte; quedan %s por asignar."
)

const (
	buttonsPerRow = 3
	maxOptionRows = 4
)

var scopeIcons = map[ledger.Scope]string{
	ledger.ScopeFamiliar: "🏠",
	ledger.ScopePersonal: "👤",
}

var kindIcons = map[ledger.Kind]string{
	ledger.KindIncome:  "📥",
	ledger.KindExpense: "📤",
	ledger.KindSavings: "🐷",
}

var cancelButton = chat.Button{Label: "❌ Cancelar", Token: Token(Confirm{Action: ConfirmCancel})}

func (m *Machine) header(st *State) string {
	var b strings.Builder
	b.WriteString("💰 Nueva transacción\n")
	if st.Tx.Description != "" {
		fmt.Fprintf(&b, "🛒 %s\n", st.Tx.Description)
	}
	fmt.Fprintf(&b, "💵 %s", money.Format(st.Total))
	if st.Tx.Timestamp != "" {
		fmt.Fprintf(&b, "\n📅 %s", st.Tx.Timestamp)
	}
	return b.String()
}

func (m *Machine) summary(st *State) string {
	var b strings.Builder
	b.WriteString(m.header(st))
	b.WriteString("\n\n📋 Resumen:")
	for i, s := range st.Splits {
		fmt.Fprintf(&b, "\n%d. %s (%s %s, %s %s): %s",
			i+1, s.Label(), scopeIcons[s.Scope], s.Scope, kindIcons[s.Kind], s.Kind, money.Format(s.Amount))
	}
	return b.String()
}

func (m *Machine) progress(st *State) string {
	assigned := st.Total.Sub(st.Remaining)
	return fmt.Sprintf("💵 Total: %s\n✅ Asignado: %s\n⏳ Restante: %s",
		money.Format(st.Total), money.Format(assigned), money.Format(st.Remaining))
}

// render builds the prompt for the current status. notice is prepended as an error line.
func (m *Machine) render(st *State, notice string) Reply {
	var text string
	var kb chat.Keyboard

	switch st.Status {
	case StatusWaitingValidate:
		text = m.header(st) + "\n\n¿Deseas registrarla?"
		kb = chat.Keyboard{{
			{Label: "✅ Registrar", Token: Token(Validate{Accept: true})},
			{Label: "❌ Ignorar", Token: Token(Validate{Accept: false})},
		}}

	case StatusWaitingMultiplicity:
		text = m.header(st) + "\n\n¿Una sola categoría o se divide en varias?"
		kb = chat.Keyboard{
			{
				{Label: "1️⃣ Una categoría", Token: Token(ChooseMultiplicity{Multiple: false})},
				{Label: "🔀 Dividir", Token: Token(ChooseMultiplicity{Multiple: true})},
			},
			{cancelButton},
		}

	case StatusWaitingAmount:
		text = fmt.Sprintf("%s\n\n%s\n\n✍️ Responde con el monto de la parte %d.",
			m.header(st), m.progress(st), len(st.Splits)+1)
		row := []chat.Button{}
		if len(st.Splits) > 0 && st.Remaining.IsPositive() {
			row = append(row, chat.Button{
				Label: "Usar restante " + money.Format(st.Remaining),
				Token: Token(UseRemaining{}),
			})
		}
		row = append(row, cancelButton)
		kb = chat.Keyboard{row}

	case StatusWaitingScope:
		text = m.header(st) + "\n\n" + m.splitLine(st) + "¿Es familiar o personal?"
		var buttons []chat.Button
		for _, s := range m.tax.Scopes() {
			buttons = append(buttons, chat.Button{Label: scopeIcons[s] + " " + string(s), Token: Token(ChooseScope{Scope: s})})
		}
		kb = append(optionRows(buttons), []chat.Button{cancelButton})

	case StatusWaitingCategory:
		text = fmt.Sprintf("%s\n\n%s%s %s\n¿Cuál es la categoría?", m.header(st), m.splitLine(st), scopeIcons[st.Scope], st.Scope)
		var buttons []chat.Button
		for _, c := range m.tax.Categories(st.Scope) {
			buttons = append(buttons, chat.Button{Label: c.Name, Token: Token(ChooseCategory{Name: c.Name})})
		}
		kb = append(optionRows(buttons), []chat.Button{cancelButton})

	case StatusWaitingSubcategory:
		text = fmt.Sprintf("%s\n\n%s📂 %s\n¿Cuál es la subcategoría?", m.header(st), m.splitLine(st), st.PendingCategory)
		cat, _ := m.tax.Category(st.Scope, st.PendingCategory)
		var buttons []chat.Button
		for _, sub := range cat.Subcategories {
			label := sub
			if taxonomy.IsPocket(sub) {
				label = "💰 " + taxonomy.DisplayName(sub)
			}
			buttons = append(buttons, chat.Button{Label: label, Token: Token(ChooseSubcategory{Name: sub})})
		}
		kb = append(optionRows(buttons), []chat.Button{cancelButton})

	case StatusWaitingAction:
		text = fmt.Sprintf("%s\n\n%s💰 Bolsillo %s - %s\n¿Es ingreso, gasto o ahorro?",
			m.header(st), m.splitLine(st), st.PendingCategory, taxonomy.DisplayName(st.PendingSubcategory))
		var buttons []chat.Button
		for _, k := range ledger.Kinds {
			buttons = append(buttons, chat.Button{Label: kindIcons[k] + " " + string(k), Token: Token(ChooseKind{Kind: k})})
		}
		kb = chat.Keyboard{buttons, {cancelButton}}

	case StatusConfirming:
		text = m.summary(st) + "\n\n¿Guardar?"
		kb = chat.Keyboard{{
			{Label: "💾 Guardar", Token: Token(Confirm{Action: ConfirmSave})},
			{Label: "🔄 Reiniciar", Token: Token(Confirm{Action: ConfirmRestart})},
			cancelButton,
		}}
	}

	if notice != "" {
		text = notice + "\n\n" + text
	}
	return Reply{Text: text, Keyboard: kb}
}

// optionRows keeps options within maxOptionRows rows, widening rows only when they do not fit.
func optionRows(buttons []chat.Button) chat.Keyboard {
	perRow := max(buttonsPerRow, (len(buttons)+maxOptionRows-1)/maxOptionRows)
	return chat.Rows(perRow, buttons...)
}

// splitLine names the split being classified in multiple mode.
func (m *Machine) splitLine(st *State) string {
	if !st.Multiple {
		return ""
	}
	return fmt.Sprintf("🔀 Parte %d: %s\n", len(st.Splits)+1, money.Format(st.PendingAmount))
}
