package domain

import (
	"slices"
	"strings"
)

const DefaultStagingQuantity = 1

// StagingSelection is the line being composed before it is committed to the
// cart. ItemID zero means nothing is selected.
type StagingSelection struct {
	ItemID      int
	Quantity    int
	SerialInput string
	Serials     []string
}

func NewStagingSelection() StagingSelection {
	return StagingSelection{Quantity: DefaultStagingQuantity}
}

func (s *StagingSelection) HasItem() bool {
	return s.ItemID > 0
}

// Select switches the staged item and drops any serial input gathered for the
// previous one. The staged quantity is kept.
func (s *StagingSelection) Select(itemID int) {
	s.ItemID = itemID
	s.SerialInput = ""
	s.Serials = nil
}

// AddTempSerial commits the current serial input to the staged set.
func (s *StagingSelection) AddTempSerial() error {
	if err := s.AddSerial(s.SerialInput); err != nil {
		return err
	}
	s.SerialInput = ""
	return nil
}

// AddSerial trims sn and appends it. Blank input is ignored; an exact repeat
// is rejected with ErrDuplicateSerial.
func (s *StagingSelection) AddSerial(sn string) error {
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return nil
	}
	if slices.Contains(s.Serials, sn) {
		return ErrDuplicateSerial
	}
	s.Serials = append(s.Serials, sn)
	return nil
}

func (s *StagingSelection) RemoveTempSerial(sn string) {
	sn = strings.TrimSpace(sn)
	s.Serials = slices.DeleteFunc(s.Serials, func(x string) bool { return x == sn })
}

// ToggleAvailableSerial flips membership of a serial picked from the item's
// available list.
func (s *StagingSelection) ToggleAvailableSerial(sn string) {
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return
	}
	if slices.Contains(s.Serials, sn) {
		s.RemoveTempSerial(sn)
		return
	}
	s.Serials = append(s.Serials, sn)
}

func (s *StagingSelection) Reset() {
	*s = NewStagingSelection()
}
