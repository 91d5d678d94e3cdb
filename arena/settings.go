package arena

import (
	"fmt"

	s "github.com/bnclabs/gosettings"
)

// Defaultsettings for NewFromSettings.
//
// "allocator" (string, default: "sortedlist")
//		Engine variant, one of "boundarytags", "buddy", "sortedlist".
//
// "capacity" (int64, default: 1MB)
//		Usable bytes, for boundary tags and sorted list.
//
// "order" (int64, default: 20)
//		Buddy arena order, usable bytes are 2^order.
//
// "fitmode" (string, default: "first")
//		Search policy, one of "first", "best", "worst".
func Defaultsettings() s.Settings {
	return s.Settings{
		"allocator": "sortedlist",
		"capacity":  int64(1024 * 1024),
		"order":     int64(20),
		"fitmode":   "first",
	}
}

// NewFromSettings constructs the engine described by setts, which is mixed
// over Defaultsettings. opts supplies the upstream, logger and dirty
// tracker; its FitMode is overridden by "fitmode".
func NewFromSettings(setts s.Settings, opts *Options) (Arena, error) {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)

	kind, err := ParseKind(setts.String("allocator"))
	if err != nil {
		return nil, err
	}
	fit, err := ParseFitMode(setts.String("fitmode"))
	if err != nil {
		return nil, err
	}
	o := *opts.orDefault()
	o.FitMode = fit

	var a Arena
	switch kind {
	case KindBoundaryTags:
		a, err = NewBoundaryTags(int(setts.Int64("capacity")), &o)
	case KindBuddy:
		a, err = NewBuddy(int(setts.Int64("order")), &o)
	case KindSortedList:
		a, err = NewSortedList(int(setts.Int64("capacity")), &o)
	default:
		err = fmt.Errorf("arena: no constructor for %v", kind)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
