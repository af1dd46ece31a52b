// Package qti reads and writes IMS QTI 2.1 content packages: a zip with an
// imsmanifest.xml, one assessmentItem file per question and the media the
// items reference.
package qti

import "github.com/mind-engage/mindengage-qbank/internal/formats"

const (
	nsQTI      = "http://www.imsglobal.org/xsd/imsqti_v2p1"
	nsCP       = "http://www.imsglobal.org/xsd/imscp_v1p1"
	nsQBank    = "urn:mindengage:qbank"
	itemType   = "imsqti_item_xmlv2p1"
	mediaDir   = "media"
	manifestFn = "imsmanifest.xml"
)

func init() {
	formats.Register("qti", New())
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) ContentType() string { return "application/zip" }
