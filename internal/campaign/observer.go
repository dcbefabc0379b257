package campaign

import "go.uber.org/zap"

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnProgress(int, int) {}
func (NopObserver) OnLaneLog(int, string) {}
func (NopObserver) OnSystemLog(string) {}

// LogObserver mirrors observer events into a zap logger. Progress is
// logged at debug level since it fires once per contact.
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) OnProgress(current, total int) {
	o.Logger.Debug("progress", zap.Int("current", current), zap.Int("total", total))
}

func (o LogObserver) OnLaneLog(lane int, msg string) {
	o.Logger.Info(msg, zap.Int("lane", lane))
}

func (o LogObserver) OnSystemLog(msg string) {
	o.Logger.Info(msg)
}

// MultiObserver fans every event out to each member in order.
type MultiObserver []Observer

func (m MultiObserver) OnProgress(current, total int) {
	for _, o := range m {
		o.OnProgress(current, total)
	}
}

func (m MultiObserver) OnLaneLog(lane int, msg string) {
	for _, o := range m {
		o.OnLaneLog(lane, msg)
	}
}

func (m MultiObserver) OnSystemLog(msg string) {
	for _, o := range m {
		o.OnSystemLog(msg)
	}
}
