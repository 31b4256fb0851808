package flash

import "github.com/grissiom/fvs/word"

// SelectActive inspects both pages' status words and returns the index
// (0 or 1) of the active page, or -1 if neither is active — a fresh block
// that has never been used (spec §4.4).
//
// eraseOther reports whether the page NOT selected must be erased before
// the block can be used: this happens only when both pages read as active,
// which means the last roll crashed after activating the destination page
// but before erasing the source (spec §4.6, §7). In that case the tiebreak
// keeps the page whose live-byte sum (headers included) is greater, and
// page 0 when the sums are equal. A roll copies every live record of its
// source, so after such a crash both pages hold the same live records: the
// sums are equal and page 0 is kept, whichever page was the roll's
// destination, and either page holds every stored value.
func SelectActive(r Reader, pages [2]Page, w word.Width) (idx int, eraseOther bool, err error) {
	a0 := pages[0].IsActive(r, w)
	a1 := pages[1].IsActive(r, w)

	switch {
	case !a0 && !a1:
		return -1, false, nil
	case a0 && !a1:
		return 0, false, nil
	case !a0 && a1:
		return 1, false, nil
	}

	live0, err := LiveBytesIncludingHeaders(pages[0].ReadUsable(r), w)
	if err != nil {
		return -1, false, err
	}
	live1, err := LiveBytesIncludingHeaders(pages[1].ReadUsable(r), w)
	if err != nil {
		return -1, false, err
	}
	if live0 >= live1 {
		return 0, true, nil
	}
	return 1, true, nil
}
