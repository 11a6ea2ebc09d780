// Package loader reads crop profiles from a workbook or from CSV files.
//
// Both sources carry the same three tables: profiles (one row per crop
// version), stages (ordered rows per crop) and templates (schedule entries
// per crop). Header names are matched loosely, so "Growing Period Days",
// "growing_period_days" and "growingperioddays" are the same column.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"cropcal/entities"
)

const (
	SheetProfiles  = "profiles"
	SheetStages    = "stages"
	SheetTemplates = "templates"
)

// FromWorkbook reads the three sheets of an XLSX file.
func FromWorkbook(path string) ([]entities.CropProfile, error) {
	x, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer x.Close()

	tables := map[string][][]string{}
	for _, name := range []string{SheetProfiles, SheetStages, SheetTemplates} {
		rows, err := x.GetRows(name)
		if err != nil {
			if name == SheetTemplates {
				continue
			}
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		tables[name] = rows
	}
	return build(tables[SheetProfiles], tables[SheetStages], tables[SheetTemplates])
}

// FromDir reads profiles.csv, stages.csv and the optional templates.csv.
func FromDir(dir string) ([]entities.CropProfile, error) {
	read := func(name string, required bool) ([][]string, error) {
		f, err := os.Open(filepath.Join(dir, name+".csv"))
		if err != nil {
			if !required && errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		defer f.Close()
		cr := csv.NewReader(f)
		cr.FieldsPerRecord = -1
		var rows [][]string
		for {
			rec, err := cr.Read()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("%s.csv: %w", name, err)
			}
			rows = append(rows, rec)
		}
		return rows, nil
	}
	profiles, err := read(SheetProfiles, true)
	if err != nil {
		return nil, err
	}
	stages, err := read(SheetStages, true)
	if err != nil {
		return nil, err
	}
	templates, err := read(SheetTemplates, false)
	if err != nil {
		return nil, err
	}
	return build(profiles, stages, templates)
}

func norm(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// table gives alias-tolerant access to a header + rows block.
type table struct {
	name string
	head map[string]int
	rows [][]string
}

func newTable(name string, rows [][]string) (*table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty table", name)
	}
	t := &table{name: name, head: map[string]int{}, rows: rows[1:]}
	for i, h := range rows[0] {
		t.head[norm(h)] = i
	}
	return t, nil
}

func (t *table) col(keys ...string) int {
	for _, k := range keys {
		if idx, ok := t.head[norm(k)]; ok {
			return idx
		}
	}
	return -1
}

func (t *table) require(cols map[string]int) error {
	var missing []string
	for name, idx := range cols {
		if idx == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: missing required columns %v", t.name, missing)
	}
	return nil
}

func get(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func num(rec []string, idx int) (float64, error) {
	s := get(rec, idx)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func optNum(rec []string, idx int) (*float64, error) {
	s := get(rec, idx)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func integer(rec []string, idx int) (int, error) {
	s := get(rec, idx)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

type profileKey struct {
	crop    string
	version int
}

func build(profileRows, stageRows, templateRows [][]string) ([]entities.CropProfile, error) {
	pt, err := newTable(SheetProfiles, profileRows)
	if err != nil {
		return nil, err
	}
	cCrop := pt.col("crop_id", "crop", "cropid")
	cVer := pt.col("version", "ver")
	cName := pt.col("name", "crop_name")
	cGPD := pt.col("growing_period_days", "growing_days", "duration_days", "days")
	if err := pt.require(map[string]int{"crop_id": cCrop, "growing_period_days": cGPD}); err != nil {
		return nil, err
	}
	ranges := map[string][3]int{
		"temperature":   {pt.col("temp_min", "temperature_min"), pt.col("temp_max", "temperature_max"), pt.col("temp_optimal", "temp_opt", "temperature_optimal")},
		"soil_moisture": {pt.col("moisture_min", "soil_moisture_min"), pt.col("moisture_max", "soil_moisture_max"), pt.col("moisture_optimal", "moisture_opt", "soil_moisture_optimal")},
		"soil_ph":       {pt.col("ph_min", "soil_ph_min"), pt.col("ph_max", "soil_ph_max"), pt.col("ph_optimal", "ph_opt", "soil_ph_optimal")},
	}
	cYield := pt.col("expected_yield_per_hectare", "expected_yield", "yield_per_ha")
	cRef := pt.col("reference_area_ha", "reference_area", "ref_area_ha")
	cCur := pt.col("currency")

	var order []profileKey
	byKey := map[profileKey]*entities.CropProfile{}
	byCrop := map[string][]profileKey{}
	for i, rec := range pt.rows {
		crop := get(rec, cCrop)
		if crop == "" {
			continue
		}
		line := i + 2
		ver, err := integer(rec, cVer)
		if err != nil {
			return nil, fmt.Errorf("profiles row %d: version: %w", line, err)
		}
		if ver == 0 {
			ver = 1
		}
		gpd, err := integer(rec, cGPD)
		if err != nil {
			return nil, fmt.Errorf("profiles row %d: growing_period_days: %w", line, err)
		}
		p := &entities.CropProfile{CropID: crop, Version: ver, Name: get(rec, cName), GrowingPeriodDays: gpd, Currency: get(rec, cCur)}
		if p.Name == "" {
			p.Name = crop
		}
		for field, cols := range ranges {
			var r entities.Range
			vals := []*float64{&r.Min, &r.Max, &r.Optimal}
			for j, c := range cols {
				v, err := num(rec, c)
				if err != nil {
					return nil, fmt.Errorf("profiles row %d: %s: %w", line, field, err)
				}
				*vals[j] = v
			}
			switch field {
			case "temperature":
				p.Temperature = r
			case "soil_moisture":
				p.SoilMoisture = r
			case "soil_ph":
				p.SoilPH = r
			}
		}
		if p.ExpectedYieldPerHectare, err = num(rec, cYield); err != nil {
			return nil, fmt.Errorf("profiles row %d: expected_yield: %w", line, err)
		}
		if p.ReferenceAreaHa, err = num(rec, cRef); err != nil {
			return nil, fmt.Errorf("profiles row %d: reference_area: %w", line, err)
		}
		if p.ReferenceAreaHa == 0 {
			p.ReferenceAreaHa = 1
		}
		k := profileKey{crop, ver}
		if _, dup := byKey[k]; dup {
			return nil, fmt.Errorf("profiles row %d: duplicate %s v%d", line, crop, ver)
		}
		byKey[k] = p
		byCrop[crop] = append(byCrop[crop], k)
		order = append(order, k)
	}

	// stage and template rows may pin a version; without one they apply to
	// every version of the crop.
	targets := func(rec []string, cCrop, cVer int) ([]profileKey, error) {
		crop := get(rec, cCrop)
		ver, err := integer(rec, cVer)
		if err != nil {
			return nil, err
		}
		if ver == 0 {
			return byCrop[crop], nil
		}
		k := profileKey{crop, ver}
		if _, ok := byKey[k]; !ok {
			return nil, nil
		}
		return []profileKey{k}, nil
	}

	st, err := newTable(SheetStages, stageRows)
	if err != nil {
		return nil, err
	}
	sCrop := st.col("crop_id", "crop")
	sVer := st.col("version")
	sName := st.col("stage", "name", "phase")
	sFrac := st.col("fraction", "relative_duration_fraction", "share")
	sSens := st.col("sensitivity", "weight")
	sNDVI := st.col("expected_ndvi", "ndvi")
	if err := st.require(map[string]int{"crop_id": sCrop, "stage": sName, "fraction": sFrac}); err != nil {
		return nil, err
	}
	for i, rec := range st.rows {
		line := i + 2
		keys, err := targets(rec, sCrop, sVer)
		if err != nil {
			return nil, fmt.Errorf("stages row %d: version: %w", line, err)
		}
		if len(keys) == 0 {
			continue
		}
		frac, err := num(rec, sFrac)
		if err != nil {
			return nil, fmt.Errorf("stages row %d: fraction: %w", line, err)
		}
		sens, err := num(rec, sSens)
		if err != nil {
			return nil, fmt.Errorf("stages row %d: sensitivity: %w", line, err)
		}
		ndvi, err := optNum(rec, sNDVI)
		if err != nil {
			return nil, fmt.Errorf("stages row %d: expected_ndvi: %w", line, err)
		}
		for _, k := range keys {
			p := byKey[k]
			p.GrowthStages = append(p.GrowthStages, entities.GrowthStage{
				Name: get(rec, sName), RelativeDurationFraction: frac, Sensitivity: sens, ExpectedNDVI: ndvi,
			})
		}
	}

	if len(templateRows) > 0 {
		tt, err := newTable(SheetTemplates, templateRows)
		if err != nil {
			return nil, err
		}
		tCrop := tt.col("crop_id", "crop")
		tVer := tt.col("version")
		tKind := tt.col("kind", "category", "type")
		tStage := tt.col("stage")
		tOff := tt.col("stage_offset_days", "offset_in_stage", "stage_offset")
		tEvery := tt.col("every_days", "interval", "interval_days", "irrigation_interval")
		tDay := tt.col("day_offset", "days_after_planting", "dap")
		tAction := tt.col("action", "activity", "title")
		tProduct := tt.col("product")
		tRate := tt.col("rate_per_ref_area", "rate", "qty")
		tUnit := tt.col("unit")
		tPMin := tt.col("price_min", "unit_price_min")
		tPMax := tt.col("price_max", "unit_price_max")
		if err := tt.require(map[string]int{"crop_id": tCrop, "kind": tKind, "action": tAction}); err != nil {
			return nil, err
		}
		for i, rec := range tt.rows {
			line := i + 2
			keys, err := targets(rec, tCrop, tVer)
			if err != nil {
				return nil, fmt.Errorf("templates row %d: version: %w", line, err)
			}
			if len(keys) == 0 {
				continue
			}
			kind := entities.EventKind(strings.ToLower(get(rec, tKind)))
			if kind == "pest" || kind == "pestmanagement" {
				kind = entities.KindPestManagement
			}
			if !kind.Valid() || kind == entities.KindActivity {
				return nil, fmt.Errorf("templates row %d: unknown kind %q", line, get(rec, tKind))
			}
			e := entities.TemplateEntry{Stage: get(rec, tStage), Action: get(rec, tAction), Product: get(rec, tProduct), Unit: get(rec, tUnit)}
			if e.StageOffsetDays, err = integer(rec, tOff); err != nil {
				return nil, fmt.Errorf("templates row %d: stage_offset_days: %w", line, err)
			}
			if e.EveryDays, err = integer(rec, tEvery); err != nil {
				return nil, fmt.Errorf("templates row %d: every_days: %w", line, err)
			}
			if s := get(rec, tDay); s != "" {
				d, err := strconv.Atoi(s)
				if err != nil {
					return nil, fmt.Errorf("templates row %d: day_offset: %w", line, err)
				}
				e.DayOffset = &d
			}
			if e.RatePerRefArea, err = num(rec, tRate); err != nil {
				return nil, fmt.Errorf("templates row %d: rate: %w", line, err)
			}
			if e.UnitPrice.Min, err = num(rec, tPMin); err != nil {
				return nil, fmt.Errorf("templates row %d: price_min: %w", line, err)
			}
			if e.UnitPrice.Max, err = num(rec, tPMax); err != nil {
				return nil, fmt.Errorf("templates row %d: price_max: %w", line, err)
			}
			if e.UnitPrice.Max < e.UnitPrice.Min {
				e.UnitPrice.Max = e.UnitPrice.Min
			}
			for _, k := range keys {
				p := byKey[k]
				switch kind {
				case entities.KindFertilization:
					p.FertilizationSchedule = append(p.FertilizationSchedule, e)
				case entities.KindIrrigation:
					p.IrrigationSchedule = append(p.IrrigationSchedule, e)
				case entities.KindPestManagement:
					p.PestManagementSchedule = append(p.PestManagementSchedule, e)
				case entities.KindActivity:
				}
			}
		}
	}

	out := make([]entities.CropProfile, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, nil
}
