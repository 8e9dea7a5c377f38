package common

import "fmt"

// PageID identifies a page by the table it belongs to and its zero based position in the table's file.
type PageID struct {
	TableID int32
	PageNo  int
}

func NewPageID(tableID int32, pageNo int) PageID {
	return PageID{TableID: tableID, PageNo: pageNo}
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.TableID, p.PageNo)
}

// RecordID is the storage location of a tuple.
type RecordID struct {
	PageID
	SlotNo int
}

func NewRecordID(pid PageID, slotNo int) RecordID {
	return RecordID{PageID: pid, SlotNo: slotNo}
}

func (r RecordID) String() string {
	return fmt.Sprintf("%v/%d", r.PageID, r.SlotNo)
}

// Less orders record ids by page number and then by slot number.
func (r RecordID) Less(than RecordID) bool {
	if r.PageID.PageNo != than.PageID.PageNo {
		return r.PageID.PageNo < than.PageID.PageNo
	}
	return r.SlotNo < than.SlotNo
}
