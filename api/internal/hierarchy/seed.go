package hierarchy

import "time"

// SeedTree is the demo hierarchy loaded at startup when no external source
// is configured. IDs are stable so bookmarks and seeded nav state survive
// restarts.
func SeedTree(now time.Time) Node {
	date := func(daysFromNow int) *time.Time {
		d := dayOf(now).AddDate(0, 0, daysFromNow)
		return &d
	}

	return Node{
		ID:   "root",
		Name: "Industrial Assets",
		Type: NodeRoot,
		Children: []Node{
			{
				ID:   "company-north",
				Name: "Northern Operating Company",
				Type: NodeCompany,
				Children: []Node{
					{
						ID:   "branch-west",
						Name: "Western Branch",
						Type: NodeBranch,
						Children: []Node{
							{
								ID:   "division-transport",
								Name: "Transport Division",
								Type: NodeDivision,
								Children: []Node{
									{
										ID:            "group-pipelines",
										Name:          "Process Pipelines",
										Type:          NodeGroup,
										EquipmentType: "pipeline",
										Children: []Node{
											{
												ID:                 "eq-pipeline-12",
												Name:               "Pipeline section 12",
												Type:               NodeEquipment,
												EquipmentType:      "pipeline",
												Status:             StatusOK,
												NextInspectionDate: date(120),
												Attributes: Attributes{
													"manufacturer":        "VolgaPipe Works",
													"registration_number": "PL-0012",
													"diameter_mm":         530,
													"wall_thickness_mm":   8,
													"length_m":            1240,
													"material":            "09G2S",
													"design_pressure_mpa": 6.3,
													"commissioned_year":   2009,
												},
												History: []MaintenanceEvent{
													{
														ID:          "hist-pl12-1",
														Date:        dayOf(now).AddDate(0, -4, 0),
														Type:        EventInspection,
														Title:       "Scheduled VIK inspection",
														Description: "Visual and measurement inspection, no defects found",
														Performer:   "Inspection crew 3",
													},
												},
												Documents: []AttachedDocument{
													{
														ID:         "doc-pl12-passport",
														Name:       "Pipeline section 12 passport",
														Category:   DocPassport,
														UploadDate: dayOf(now).AddDate(-1, 0, 0),
														UploadedBy: Uploader{Name: "A. Petrova", Role: "Archive", Initials: "AP"},
														Size:       "2.4 MB",
														Extension:  "pdf",
													},
												},
											},
											{
												ID:                 "eq-pipeline-14",
												Name:               "Pipeline section 14",
												Type:               NodeEquipment,
												EquipmentType:      "pipeline",
												Status:             StatusWarning,
												NextInspectionDate: date(12),
												Attributes: Attributes{
													"manufacturer":        "VolgaPipe Works",
													"registration_number": "PL-0014",
													"diameter_mm":         325,
													"wall_thickness_mm":   7,
													"length_m":            860,
													"material":            "09G2S",
													"design_pressure_mpa": 4.0,
												},
											},
										},
									},
									{
										ID:            "group-vessels",
										Name:          "Pressure Vessels",
										Type:          NodeGroup,
										EquipmentType: "pressure_vessel",
										Children: []Node{
											{
												ID:                 "eq-separator-1",
												Name:               "Separator S-1",
												Type:               NodeEquipment,
												EquipmentType:      "pressure_vessel",
												Status:             StatusCritical,
												NextInspectionDate: date(-1),
												Attributes: Attributes{
													"manufacturer":         "UralChemMash",
													"serial_number":        "SEP-88-1071",
													"registration_number":  "PV-0301",
													"volume_m3":            25,
													"design_pressure_mpa":  1.6,
													"design_temperature_c": 100,
													"material":             "16GS",
													"design_life_years":    20,
												},
												History: []MaintenanceEvent{
													{
														ID:          "hist-sep1-2",
														Date:        dayOf(now).AddDate(0, -1, 0),
														Type:        EventIncident,
														Title:       "Relief valve weeping",
														Description: "Safety valve seat leakage detected during rounds, valve scheduled for replacement",
														Performer:   "Shift operator",
													},
													{
														ID:          "hist-sep1-1",
														Date:        dayOf(now).AddDate(-1, -2, 0),
														Type:        EventRepair,
														Title:       "Nozzle weld repair",
														Description: "Repair of inlet nozzle weld per EPB recommendation",
														Performer:   "Repair crew 1",
														DocumentRef: "doc-sep1-epb",
													},
												},
												Documents: []AttachedDocument{
													{
														ID:         "doc-sep1-epb",
														Name:       "Industrial safety expertise report",
														Category:   DocEPBReport,
														UploadDate: dayOf(now).AddDate(-1, -2, 0),
														UploadedBy: Uploader{Name: "I. Smirnov", Role: "Expert", Initials: "IS"},
														Size:       "5.1 MB",
														Extension:  "pdf",
													},
												},
											},
										},
									},
								},
							},
							{
								ID:   "department-storage",
								Name: "Storage Department",
								Type: NodeDepartment,
								Children: []Node{
									{
										ID:            "group-tanks",
										Name:          "Storage Tanks",
										Type:          NodeGroup,
										EquipmentType: "tank",
										Children: []Node{
											{
												ID:                 "eq-tank-3",
												Name:               "Tank RVS-3",
												Type:               NodeEquipment,
												EquipmentType:      "tank",
												Status:             StatusOK,
												NextInspectionDate: date(45),
												Attributes: Attributes{
													"manufacturer":        "TankStroy",
													"registration_number": "TK-0203",
													"volume_m3":           5000,
													"shell_courses":       8,
													"material":            "VSt3sp",
													"commissioned_year":   1998,
												},
											},
										},
									},
								},
							},
						},
					},
					{
						ID:   "branch-east",
						Name: "Eastern Branch",
						Type: NodeBranch,
						Children: []Node{
							{
								ID:            "group-transformers",
								Name:          "Power Transformers",
								Type:          NodeGroup,
								EquipmentType: "transformer",
								Children: []Node{
									{
										ID:                 "eq-transformer-7",
										Name:               "Transformer T-7",
										Type:               NodeEquipment,
										EquipmentType:      "transformer",
										Status:             StatusOK,
										NextInspectionDate: date(200),
										Attributes: Attributes{
											"manufacturer":  "ElektroZavod",
											"serial_number": "TR-7-5520",
											"power_kva":     1600,
											"voltage_kv":    10,
											"oil_mass_kg":   1450,
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// SeedExpandedBranch is the branch opened by default alongside the root on
// first render.
const SeedExpandedBranch = "company-north"
