package conversation

// AgentPersona describes one simulated conflict party.
type AgentPersona struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}
