package truststore

// TargetKind distinguishes system trust stores from browser certificate databases.
type TargetKind string

const (
	TargetKindSystem  TargetKind = "system"
	TargetKindBrowser TargetKind = "browser"
)

// InstallationOutcome records one attempted installation. The order of
// outcomes within a report is the order the installations were attempted.
type InstallationOutcome struct {
	TargetKind TargetKind
	Path       string
	Succeeded  bool
	Detail     string
}

// DeferredScript is the artifact produced instead of a direct mutation on
// platforms where privileged store changes require an elevated, interactive
// context this process does not assume.
type DeferredScript struct {
	FileName     string
	Content      string
	Instructions string
}

// InstallationReport aggregates every outcome of one run.
type InstallationReport struct {
	Outcomes            []InstallationOutcome
	SystemSucceeded     bool
	AnyBrowserInstalled bool
	BrowserDegraded     bool
	BrowserProfileCount int
	DeferredScript      *DeferredScript
}

func (report *InstallationReport) appendOutcome(outcome InstallationOutcome) {
	report.Outcomes = append(report.Outcomes, outcome)
}

// foldBrowserOutcomes reduces per-profile outcomes into the aggregate browser
// flags: any single success marks the browser phase as installed.
func (report *InstallationReport) foldBrowserOutcomes(outcomes []InstallationOutcome, degraded bool) {
	for _, outcome := range outcomes {
		report.appendOutcome(outcome)
		if outcome.Succeeded {
			report.AnyBrowserInstalled = true
		}
	}
	report.BrowserDegraded = degraded && !report.AnyBrowserInstalled
}
