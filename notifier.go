package identity

import "context"

// NotificationKind selects the template a Notifier should deliver
type NotificationKind string

const (
	// NotificationActivation carries the activation key to a new registrant
	NotificationActivation NotificationKind = "activation"
	// NotificationCreation tells an admin-created user how to claim a password
	NotificationCreation NotificationKind = "creation"
	// NotificationPasswordReset carries a reset key
	NotificationPasswordReset NotificationKind = "password-reset"
)

// Notifier delivers lifecycle emails. Implementations are expected to
// be safe for concurrent use; delivery failures are the implementation's
// to report, the lifecycle never retries or surfaces them.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, account *Account) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, NotificationKind, *Account) error { return nil }

// logNotifier is the default Notifier, it prints the would-be delivery
type logNotifier struct {
	logger Logger
}

// NewLogNotifier returns a Notifier that logs instead of delivering
func NewLogNotifier(logger Logger) Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return logNotifier{logger: logger}
}

func (n logNotifier) Notify(ctx context.Context, kind NotificationKind, account *Account) error {
	if account == nil || account.Email == "" {
		n.logger.Debug("skipping %s notification for account without email", kind)
		return nil
	}
	n.logger.Info("would send %s notification to %s", kind, account.Email)
	return nil
}

func normalizeNotifier(notifier Notifier) Notifier {
	if notifier == nil {
		return noopNotifier{}
	}
	return notifier
}
