package registry

import "github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"

// SelectRepresentative picks the candidate that should stand for the
// slot: the strictly sharpest one, with the earliest capture time
// breaking exact ties. Returns the empty string for an empty slot.
// The function is pure so re-running it over the same candidates always
// yields the same choice.
func SelectRepresentative(candidates []models.PhotoEntry) string {
	best := -1
	for i := range candidates {
		if best < 0 {
			best = i
			continue
		}
		switch {
		case candidates[i].Sharpness > candidates[best].Sharpness:
			best = i
		case candidates[i].Sharpness == candidates[best].Sharpness &&
			candidates[i].CreatedAt.Before(candidates[best].CreatedAt):
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return candidates[best].ID
}
