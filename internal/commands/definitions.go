package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gastobot/internal/ledger"
)

func GetCommands() []*discordgo.ApplicationCommand {
	scopeChoices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: string(ledger.ScopeFamiliar), Value: string(ledger.ScopeFamiliar)},
		{Name: string(ledger.ScopePersonal), Value: string(ledger.ScopePersonal)},
	}
	var kindChoices []*discordgo.ApplicationCommandOptionChoice
	for _, k := range ledger.Kinds {
		kindChoices = append(kindChoices, &discordgo.ApplicationCommandOptionChoice{Name: string(k), Value: string(k)})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         "fijos",
			Description:  "Revisa los gastos fijos del ciclo",
			DMPermission: boolPtr(false),
		},
		{
			Name:         "total",
			Description:  "Muestra el acumulado del ciclo para una categoría",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "ambito",
					Description: "Familiar o Personal",
					Required:    true,
					Choices:     scopeChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "categoria",
					Description: "Categoría (sin emoji)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "subcategoria",
					Description: "Subcategoría",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tipo",
					Description: "Tipo de movimiento (por defecto Gasto)",
					Choices:     kindChoices,
				},
			},
		},
		{
			Name:         "pendientes",
			Description:  "Lista las transacciones que esperan clasificación",
			DMPermission: boolPtr(false),
		},
		{
			Name:         "registrar",
			Description:  "Registra una transacción manual",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "monto",
					Description: "Monto, por ejemplo 85.000 o 85k",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "descripcion",
					Description: "Descripción",
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
