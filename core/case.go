package core

// Case is a citizen's social case, the parent of appropriations.
type Case struct {
	ID         CaseID
	SbsysID    string
	CPRNumber  string
	Name       string
	CaseWorker string
}

// CaseExpired reports whether every main activity of the case has ended
// before today. A case without appropriations or activities is not expired.
// activities holds the activities of each of the case's appropriations.
func CaseExpired(activities [][]Activity, today Date) bool {
	found := false
	for _, list := range activities {
		for _, a := range list {
			found = true
			if !a.IsMain() {
				continue
			}
			if a.EndDate == nil || a.EndDate.AfterOrEqual(today) {
				return false
			}
		}
	}
	return found
}
