package notifier

// TextNotifier 把一段文本推送到外部渠道。失败只影响通知本身，
// 不得影响再分配结果。
type TextNotifier interface {
	SendText(text string) error
}

// Noop 静默丢弃所有通知。
type Noop struct{}

func (Noop) SendText(string) error { return nil }
