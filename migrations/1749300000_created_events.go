package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("events")
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")

		collection.Fields.Add(
			&core.TextField{Name: "title", Required: true, Max: 200},
			&core.TextField{Name: "description", Max: 5000},
			&core.DateField{Name: "date", Required: true},
			&core.TextField{Name: "location"},
			&core.TextField{Name: "category"},
			// decimal STX amount
			&core.TextField{Name: "price", Pattern: `^\d+(\.\d+)?$`},
			&core.NumberField{Name: "capacity", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.TextField{Name: "organizer_name"},
			&core.TextField{Name: "organizer_address", Required: true},
			&core.TextField{Name: "metadata_uri", Max: 256},
			&core.TextField{Name: "image_uri"},
			&core.SelectField{Name: "status", Values: []string{"upcoming", "past"}, MaxSelect: 1},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		collection.AddIndex("idx_events_organizer", false, "organizer_address", "")
		collection.AddIndex("idx_events_status_date", false, "status, date", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
