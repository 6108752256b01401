package cqe

import (
	"strings"

	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/errno"
)

// SubmitJobReq 提交配音任务请求
type SubmitJobReq struct {
	MediaKey        string   `json:"media_key"`        // 源视频对象键
	SourceLanguage  string   `json:"source_language"`  // 源语言，为空或 auto 时自动检测
	TargetLanguages []string `json:"target_languages"` // 目标语言列表，按声明顺序输出
	VoiceGender     string   `json:"voice_gender"`     // male / female / auto，可选
}

// Validate checks the request shape and normalises its language codes in place.
// Language support is checked by the application service.
func (req *SubmitJobReq) Validate() error {
	req.MediaKey = strings.TrimLeft(strings.TrimSpace(req.MediaKey), "/")
	if req.MediaKey == "" {
		return errno.ErrMediaKeyRequired
	}
	if strings.Contains(req.MediaKey, "..") {
		return errno.NewBizError(errno.ErrInvalidParam, "media_key must not contain '..'")
	}

	req.SourceLanguage = vo.NormalizeLanguage(req.SourceLanguage)
	if req.SourceLanguage == "" {
		req.SourceLanguage = vo.AutoLanguage
	}

	if len(req.TargetLanguages) == 0 {
		return errno.ErrTargetLanguages
	}
	seen := make(map[string]bool, len(req.TargetLanguages))
	targets := make([]string, 0, len(req.TargetLanguages))
	for _, l := range req.TargetLanguages {
		code := vo.NormalizeLanguage(l)
		if code == "" {
			return errno.ErrTargetLanguages
		}
		if code == vo.AutoLanguage {
			return errno.NewBizError(errno.ErrUnsupportedLanguage, "auto is not a valid target")
		}
		if seen[code] {
			return errno.NewBizError(errno.ErrDuplicateLanguage, code)
		}
		seen[code] = true
		targets = append(targets, code)
	}
	req.TargetLanguages = targets

	if _, ok := vo.ParseGender(req.VoiceGender); !ok {
		return errno.NewBizError(errno.ErrInvalidVoiceGender, req.VoiceGender)
	}
	return nil
}

// Gender 解析后的音色性别
func (req *SubmitJobReq) Gender() vo.Gender {
	g, _ := vo.ParseGender(req.VoiceGender)
	return g
}

// ListJobsQuery 任务列表查询
type ListJobsQuery struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Size   int    `form:"size"`
}

// Normalize 补全分页参数并校验状态过滤
func (q *ListJobsQuery) Normalize() error {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	if q.Status != "" && !vo.JobStatus(q.Status).IsValid() {
		return errno.NewBizError(errno.ErrInvalidJobStatus, q.Status)
	}
	return nil
}
