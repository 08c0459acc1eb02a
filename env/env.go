package env

type Args struct {
	Test       *bool
	NoWow      *bool
	Verbose    *bool
	NoMQTT     *bool
	Realtime   *bool
	ConfigPath *string
}
