package payment

// =============================================================================
// PAID-INSTALLMENT LOCK
// =============================================================================
// In edit mode, once any entry of the schedule is paid (down payment
// included), the payment mode and the generation parameters freeze. Only
// still-pending installments remain editable.

// LockedFields lists the parameter names the incoming plan tries to change
// while the current plan is locked. Empty means the change is allowed.
func LockedFields(current *Plan, incoming Plan) []string {
	if current == nil || !current.AnyPaid() {
		return nil
	}

	var fields []string
	if incoming.Mode != current.Mode {
		fields = append(fields, "mode")
	}
	if !incoming.DownPayment.Equal(current.DownPayment) {
		fields = append(fields, "down_payment")
	}
	if !incoming.StartDate.Equal(current.StartDate) {
		fields = append(fields, "start_date")
	}
	if incoming.Cadence != current.Cadence {
		fields = append(fields, "cadence")
	}
	if incoming.Count != current.Count {
		fields = append(fields, "count")
	}
	return fields
}
