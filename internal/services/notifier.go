package services

const (
	NotifyAccessGranted = "access_granted"
	NotifyPayoutStatus  = "payout_status"
)

// Notifier delivers best-effort realtime messages after a commit.
type Notifier interface {
	Notify(userID int64, kind string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(int64, string, any) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
