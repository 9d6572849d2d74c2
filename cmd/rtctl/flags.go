package main

// GlobalFlags are persistent for every subcommand.
type GlobalFlags struct {
	ConfigPath     string
	LogLevel       string
	LogFormat      string
	NonInteractive bool
	// Server, when set, sends start, stop and status to a running rtctl serve.
	Server string
}

type StatusFlags struct {
	JSON bool
}

type WhoFlags struct {
	Limit int
}

type AdminUserFlags struct {
	Username string
}

type ServeFlags struct {
	Listen string
}
