package fleet

// Worker is one registered member of the fleet.
type Worker struct {
	Name     string `mapstructure:"name" json:"name"`
	Type     string `mapstructure:"type" json:"type"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}
