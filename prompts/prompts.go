package prompts

import _ "embed"

// Embedded prompt files

//go:embed agent_system.txt
var agentSystem string

//go:embed title_generator.txt
var titleGenerator string

func AgentSystem() string    { return agentSystem }
func TitleGenerator() string { return titleGenerator }
