package model

// CountryInput is the payload of a manual add, from the HTTP API or a seed
// file. Currencies and Languages take any JSON-compatible value.
type CountryInput struct {
	Alpha2Code string   `json:"alpha2_code" yaml:"alpha2_code"`
	Name       string   `json:"name" yaml:"name"`
	Alpha3Code string   `json:"alpha3_code,omitempty" yaml:"alpha3_code"`
	Capital    string   `json:"capital,omitempty" yaml:"capital"`
	Region     string   `json:"region,omitempty" yaml:"region"`
	Subregion  string   `json:"subregion,omitempty" yaml:"subregion"`
	Population *int64   `json:"population,omitempty" yaml:"population"`
	AreaKm2    *float64 `json:"area_km2,omitempty" yaml:"area_km2"`
	Latitude   *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude  *float64 `json:"longitude,omitempty" yaml:"longitude"`
	Timezones  []string `json:"timezones,omitempty" yaml:"timezones"`
	Currencies any      `json:"currencies,omitempty" yaml:"currencies"`
	Languages  any      `json:"languages,omitempty" yaml:"languages"`
	FlagURL    string   `json:"flag_url,omitempty" yaml:"flag_url"`
}
