package intent

// defaultIntents is the built-in catalog written on first run.
var defaultIntents = []Intent{
	{
		ID:        "weather",
		Patterns:  []string{"weather", "temperature", "forecast", "climate"},
		Action:    ActionGetWeather,
		Responses: []string{"Getting weather information...", "Checking the weather for you..."},
	},
	{
		ID:        "open_browser",
		Patterns:  []string{"open chrome", "open browser", "launch chrome", "start browser"},
		Action:    ActionOpenBrowser,
		Responses: []string{"Opening Chrome browser...", "Launching your browser..."},
	},
	{
		ID:        "open_camera",
		Patterns:  []string{"open camera", "start camera", "launch camera", "take photo"},
		Action:    ActionOpenCamera,
		Responses: []string{"Opening camera application...", "Starting camera..."},
	},
	{
		ID:        "open_file",
		Patterns:  []string{"open file", "browse files", "file explorer", "open folder"},
		Action:    ActionOpenFileExplorer,
		Responses: []string{"Opening file explorer...", "Launching file browser..."},
	},
	{
		ID:        "time",
		Patterns:  []string{"time", "current time", "what time is it", "clock"},
		Action:    ActionGetTime,
		Responses: []string{"The current time is", "It's currently"},
	},
	{
		ID:        "date",
		Patterns:  []string{"date", "today's date", "what's the date", "calendar"},
		Action:    ActionGetDate,
		Responses: []string{"Today's date is", "The date is"},
	},
	{
		ID:        "shutdown",
		Patterns:  []string{"shutdown", "turn off", "power off", "shut down computer"},
		Action:    ActionShutdown,
		Responses: []string{"Shutting down the system...", "Powering off..."},
	},
	{
		ID:        "restart",
		Patterns:  []string{"restart", "reboot", "restart computer", "reboot system"},
		Action:    ActionRestart,
		Responses: []string{"Restarting the system...", "Rebooting..."},
	},
}

// Default returns the built-in catalog.
func Default() *Registry {
	r, err := NewRegistry(defaultIntents)
	if err != nil {
		panic("intent: invalid built-in catalog: " + err.Error())
	}
	return r
}
