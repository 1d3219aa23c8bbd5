package forms

// SeedSchemas are the inspection forms shipped with the demo dataset, one
// per seeded equipment category.
func SeedSchemas() []ModuleSchema {
	return []ModuleSchema{
		{
			Type:  "pipeline",
			Title: "Pipeline inspection",
			Sections: []FormSection{
				{
					Title: "General",
					Fields: []FormField{
						{ID: "inspection_date", Label: "Inspection date", Type: FieldDate, Required: true},
						{ID: "inspector", Label: "Inspector", Type: FieldText, Required: true},
						{ID: "method", Label: "Inspection method", Type: FieldSelect, Required: true, Options: []string{"VIK", "ultrasonic", "radiographic"}},
					},
				},
				{
					Title: "Wall thickness",
					Fields: []FormField{
						{ID: "thickness_map", Label: "Thickness measurements", Type: FieldDrawingThickness},
						{ID: "min_thickness", Label: "Minimum measured thickness", Type: FieldNumber, Required: true, Unit: "mm"},
						{ID: "corrosion_found", Label: "Corrosion found", Type: FieldBoolean},
						{ID: "defect_photo", Label: "Defect photo", Type: FieldPhoto},
					},
				},
			},
		},
		{
			Type:  "pressure_vessel",
			Title: "Pressure vessel inspection",
			Sections: []FormSection{
				{
					Title: "General",
					Fields: []FormField{
						{ID: "inspection_date", Label: "Inspection date", Type: FieldDate, Required: true},
						{ID: "inspector", Label: "Inspector", Type: FieldText, Required: true},
					},
				},
				{
					Title: "Shell condition",
					Fields: []FormField{
						{ID: "test_pressure", Label: "Hydrotest pressure", Type: FieldNumber, Unit: "MPa"},
						{ID: "relief_valve_ok", Label: "Relief valve operational", Type: FieldBoolean, Required: true},
						{ID: "shell_photo", Label: "Shell photo", Type: FieldPhoto},
						{ID: "notes", Label: "Notes", Type: FieldText},
					},
				},
			},
		},
		{
			Type:  "tank",
			Title: "Storage tank inspection",
			Sections: []FormSection{
				{
					Title: "General",
					Fields: []FormField{
						{ID: "inspection_date", Label: "Inspection date", Type: FieldDate, Required: true},
						{ID: "inspection_scope", Label: "Scope", Type: FieldSelect, Required: true, Options: []string{"external", "internal", "full"}},
					},
				},
				{
					Title: "Bottom and shell",
					Fields: []FormField{
						{ID: "bottom_thickness", Label: "Bottom plate thickness", Type: FieldNumber, Unit: "mm"},
						{ID: "settlement_mm", Label: "Foundation settlement", Type: FieldNumber, Unit: "mm"},
						{ID: "coating_intact", Label: "Coating intact", Type: FieldBoolean},
					},
				},
			},
		},
		{
			Type:  "transformer",
			Title: "Transformer inspection",
			Sections: []FormSection{
				{
					Title: "Oil and insulation",
					Fields: []FormField{
						{ID: "inspection_date", Label: "Inspection date", Type: FieldDate, Required: true},
						{ID: "oil_temperature", Label: "Oil temperature", Type: FieldNumber, Unit: "C"},
						{ID: "insulation_resistance", Label: "Insulation resistance", Type: FieldNumber, Unit: "MOhm"},
						{ID: "leaks_found", Label: "Oil leaks found", Type: FieldBoolean},
					},
				},
			},
		},
	}
}
