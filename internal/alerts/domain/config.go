package alerts

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadThresholds returns the default thresholds, overlaid with the yaml
// file at path when it is non-empty. Zero-valued fields in the file
// keep their defaults.
func LoadThresholds(path string) (Thresholds, error) {
	thresholds := DefaultThresholds()
	if path == "" {
		return thresholds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return thresholds, err
	}

	var file Thresholds
	if err := yaml.Unmarshal(data, &file); err != nil {
		return thresholds, err
	}
	thresholds.CO2 = overlay(thresholds.CO2, file.CO2)
	thresholds.CO = overlay(thresholds.CO, file.CO)
	thresholds.PM25 = overlay(thresholds.PM25, file.PM25)
	thresholds.StoveTemp = overlay(thresholds.StoveTemp, file.StoveTemp)
	return thresholds, nil
}

func overlay(base, file Limit) Limit {
	if file.Warn > 0 {
		base.Warn = file.Warn
	}
	if file.Danger > 0 {
		base.Danger = file.Danger
	}
	if file.Warn > 0 || file.Danger > 0 {
		base.WarnTier = file.WarnTier
	}
	return base
}
