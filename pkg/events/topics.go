package events

// Topics the controller publishes. Collaborators subscribe by exact topic.
const (
	TopicIncident        = "remedy.incident"
	TopicHealApplied     = "remedy.heal.applied"
	TopicHealError       = "remedy.heal.error"
	TopicAudit           = "remedy.audit"
	TopicFixApplied      = "integrity.fix.applied"
	TopicFixRollback     = "integrity.fix.rollback"
	TopicScheduleTick    = "integrity.schedule.tick"
	TopicScheduleSummary = "integrity.schedule.summary"
	TopicEnvDrift        = "env.drift.detected"
)
