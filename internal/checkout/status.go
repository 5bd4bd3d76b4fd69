package checkout

type Status string

const (
	StatusIdle                 Status = "IDLE"
	StatusAddressReady         Status = "ADDRESS_READY"
	StatusOrderNumberAllocated Status = "ORDER_NUMBER_ALLOCATED"
	StatusPaymentPending       Status = "PAYMENT_PENDING"
	StatusPaymentSucceeded     Status = "PAYMENT_SUCCEEDED"
	StatusPaymentFailed        Status = "PAYMENT_FAILED"
	StatusPersisted            Status = "PERSISTED"
)

var transitions = map[Status][]Status{
	StatusIdle:                 {StatusAddressReady},
	StatusAddressReady:         {StatusOrderNumberAllocated},
	StatusOrderNumberAllocated: {StatusPaymentPending},
	StatusPaymentPending:       {StatusPaymentSucceeded, StatusPaymentFailed},
	StatusPaymentSucceeded:     {StatusPersisted},
	StatusPaymentFailed:        {StatusPersisted},
}

func CanTransitionTo(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusPersisted
}

func (s Status) String() string {
	return string(s)
}
