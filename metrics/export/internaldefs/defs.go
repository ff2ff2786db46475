package internaldefs

import (
	quizdom "github.com/paifgx/quizdom-sub000"
)

// CounterDef names one session counter.
type CounterDef struct {
	ID   quizdom.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram.
type HistogramDef struct {
	ID   quizdom.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: quizdom.MetricLoginSuccess, Name: "quizdom_login_success_total", Help: "Successful logins."},
	{ID: quizdom.MetricLoginFailure, Name: "quizdom_login_failure_total", Help: "Rejected or failed logins."},
	{ID: quizdom.MetricRegisterSuccess, Name: "quizdom_register_success_total", Help: "Successful registrations."},
	{ID: quizdom.MetricRegisterFailure, Name: "quizdom_register_failure_total", Help: "Rejected or failed registrations."},
	{ID: quizdom.MetricLogout, Name: "quizdom_logout_total", Help: "Logouts that ended a session."},
	{ID: quizdom.MetricSessionRestored, Name: "quizdom_session_restored_total", Help: "Sessions restored at boot."},
	{ID: quizdom.MetricSessionRestoreFailure, Name: "quizdom_session_restore_failure_total", Help: "Stored sessions rejected at boot."},
	{ID: quizdom.MetricRecordCorrupt, Name: "quizdom_record_corrupt_total", Help: "Persisted session records discarded as corrupt."},
	{ID: quizdom.MetricRevalidateSuccess, Name: "quizdom_revalidate_success_total", Help: "Successful session revalidations."},
	{ID: quizdom.MetricRevalidateFailure, Name: "quizdom_revalidate_failure_total", Help: "Failed session revalidations."},
	{ID: quizdom.MetricMonitorTickSkipped, Name: "quizdom_monitor_tick_skipped_total", Help: "Monitor ticks that skipped revalidation."},
	{ID: quizdom.MetricProfileUpdateSuccess, Name: "quizdom_profile_update_success_total", Help: "Successful profile updates."},
	{ID: quizdom.MetricProfileUpdateFailure, Name: "quizdom_profile_update_failure_total", Help: "Failed profile updates."},
	{ID: quizdom.MetricAccountDeleted, Name: "quizdom_account_deleted_total", Help: "Deleted accounts."},
	{ID: quizdom.MetricAccountDeleteFailure, Name: "quizdom_account_delete_failure_total", Help: "Failed account deletions."},
	{ID: quizdom.MetricCrossTabTeardown, Name: "quizdom_cross_tab_teardown_total", Help: "Sessions torn down by a sibling tab."},
	{ID: quizdom.MetricViewSwitch, Name: "quizdom_view_switch_total", Help: "Accepted view switches that changed the view."},
	{ID: quizdom.MetricViewSwitchDenied, Name: "quizdom_view_switch_denied_total", Help: "View switches ignored for lack of permission."},
	{ID: quizdom.MetricStorageFailure, Name: "quizdom_storage_failure_total", Help: "Session storage read or write failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: quizdom.MetricGatewayLatency, Name: "quizdom_gateway_latency_seconds", Help: "Credential gateway call latency."},
}

// HistogramBounds are the bucket labels, aligned with
// [quizdom.HistogramUpperBounds] plus the +Inf bucket.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix are the bucket labels in a form usable inside
// instrument names.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [quizdom.HistogramBucketCount]uint64 {
	var out [quizdom.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [quizdom.HistogramBucketCount]uint64) [quizdom.HistogramBucketCount]uint64 {
	var out [quizdom.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
