package config

const (
	// TopicSyncTask is the NSQ topic carrying queued parent-group sync jobs.
	TopicSyncTask = "sync.task"

	// ChannelSyncWorkers is the consumer channel shared by the sync worker pool.
	ChannelSyncWorkers = "workers"
)
