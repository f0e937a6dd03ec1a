package pipeline

// Stage is a step of the import flow.
type Stage int

const (
	StageUpload Stage = iota
	StageMapping
	StageSummary
	StageImporting
	StageReport
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageMapping:
		return "mapping & validation"
	case StageSummary:
		return "summary"
	case StageImporting:
		return "importing"
	case StageReport:
		return "report"
	}
	return "unknown"
}

type event string

const (
	eventAdvance event = "advance"
	eventBack    event = "back"
	eventFinish  event = "finish"
)

// transitions is the stage machine. Importing is left only by finishing,
// and going back from the report starts over at upload.
var transitions = map[Stage]map[event]Stage{
	StageUpload: {
		eventAdvance: StageMapping,
	},
	StageMapping: {
		eventAdvance: StageSummary,
		eventBack:    StageUpload,
	},
	StageSummary: {
		eventAdvance: StageImporting,
		eventBack:    StageMapping,
	},
	StageImporting: {
		eventFinish: StageReport,
	},
	StageReport: {
		eventBack: StageUpload,
	},
}
