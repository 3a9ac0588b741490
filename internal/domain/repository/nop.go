package repository

// NopMetrics discards every recording. Used in tests and when the metrics
// endpoint is disabled.
type NopMetrics struct{}

func (NopMetrics) SetOpenConnections(int) {}

func (NopMetrics) RecordReconnect(string) {}

func (NopMetrics) RecordFrame(string) {}

func (NopMetrics) RecordFlush(int) {}

func (NopMetrics) RecordSignalDelivered(string) {}

func (NopMetrics) RecordSignalDropped(string) {}

func (NopMetrics) RecordError(string) {}
