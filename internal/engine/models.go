package engine

// SegmentStatus is the annotation decision recorded on a segment.
type SegmentStatus string

const (
	StatusPending  SegmentStatus = "pending"
	StatusSelected SegmentStatus = "selected"
	StatusRejected SegmentStatus = "rejected"
)

// ReviewStatus tracks whether an annotator has finished a sample.
type ReviewStatus string

const (
	Reviewed   ReviewStatus = "reviewed"
	Unreviewed ReviewStatus = "unreviewed"
)

// SampleType distinguishes how a sample's media is sourced.
type SampleType string

const (
	SingleVideo    SampleType = "single_video"
	MultipleVideos SampleType = "multiple_videos"
	YouTube        SampleType = "youtube"
)

// Segment is a time-bounded annotation inside a sample's media.
// The backend is the system of record; the engine holds a transient copy
// per loaded segment list.
type Segment struct {
	ID         string        `json:"id"`
	SampleID   string        `json:"sample_id"`
	StartTime  float64       `json:"start_time"`
	EndTime    float64       `json:"end_time"`
	Status     SegmentStatus `json:"status"`
	Comment    string        `json:"comment,omitempty"`
	VideoPaths []string      `json:"video_paths,omitempty"`
}

// Sample is one recorded event, possibly captured from several viewpoints.
// One sample maps to one StreamGroup instantiation.
type Sample struct {
	ID              string       `json:"id"`
	Type            SampleType   `json:"type"`
	VideoPath       string       `json:"video_path,omitempty"`
	VideoPaths      []string     `json:"video_paths,omitempty"`
	YouTubeURL      string       `json:"youtube_url,omitempty"`
	ReviewStatus    ReviewStatus `json:"review_status"`
	ExceptionStatus string       `json:"exception_status,omitempty"`
}

// SourceURIs returns the media sources to mount for this sample, in
// viewpoint order. The first source becomes the master stream.
func (s Sample) SourceURIs() []string {
	switch s.Type {
	case MultipleVideos:
		return s.VideoPaths
	case YouTube:
		if s.YouTubeURL != "" {
			return []string{s.YouTubeURL}
		}
		return nil
	default:
		if s.VideoPath != "" {
			return []string{s.VideoPath}
		}
		return s.VideoPaths
	}
}
