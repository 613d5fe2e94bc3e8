package moderation

import "reportaciudad/internal/models"

// transitions 上报生命周期，终态没有出边
var transitions = map[models.ReportStatus][]models.ReportStatus{
	models.StatusNew:        {models.StatusInReview, models.StatusClosed},
	models.StatusInReview:   {models.StatusInProgress, models.StatusClosed},
	models.StatusInProgress: {models.StatusResolved, models.StatusClosed, models.StatusRejected},
}

// CanTransition reports whether a report may move from one estado to another.
func CanTransition(from, to models.ReportStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates lists the legal targets from a state, empty for terminal states.
func NextStates(from models.ReportStatus) []models.ReportStatus {
	out := make([]models.ReportStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}
