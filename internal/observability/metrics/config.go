package metrics

// Config attaches const labels to every collector.
type Config struct {
	ServiceName string
	Environment string
}
