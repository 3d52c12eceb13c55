package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"

	"video_progress_backend/internal/config"
	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// ContentService owns the lesson catalog. Lesson duration matters beyond
// display: it is the cap for credited coverage and the denominator of the
// coverage percent, so ingest probes it from the video when not supplied.
type ContentService struct {
	lessons LessonStore
	cfg     *config.StorageConfig
	client  *minio.Client
}

func NewContentService(lessons LessonStore, cfg *config.StorageConfig) (*ContentService, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &ContentService{lessons: lessons, cfg: cfg, client: client}, nil
}

type LessonCreateRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"durationSeconds" binding:"min=0"`
	IsPublished     bool   `json:"isPublished"`
}

func (s *ContentService) CreateLesson(req LessonCreateRequest) (*model.Lesson, error) {
	lesson := &model.Lesson{
		Title:           req.Title,
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
		IsPublished:     req.IsPublished,
	}
	if err := s.lessons.Create(lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *ContentService) GetLesson(id uint) (*model.Lesson, error) {
	return s.lessons.FindByID(id)
}

func (s *ContentService) ListLessons(page, limit int) ([]model.Lesson, int64, error) {
	return s.lessons.List(page, limit)
}

// UploadVideo stores the lesson video in object storage and, when the lesson
// has no duration yet, probes the uploaded file for one.
func (s *ContentService) UploadVideo(ctx context.Context, lessonID uint, file *multipart.FileHeader) (*model.Lesson, error) {
	lesson, err := s.lessons.FindByID(lessonID)
	if err != nil {
		return nil, err
	}

	if !util.HasAllowedExtension(file.Filename, util.AllowedVideoExtensions) {
		return nil, fmt.Errorf("unsupported video extension: %s", filepath.Ext(file.Filename))
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	detectedType, err := util.ValidateMimeType(src, []string{util.MimeVideo, util.MimeOctetStream})
	if err != nil {
		return nil, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// spool to a temp file so it can be both probed and uploaded
	tmp, err := os.CreateTemp("", "lesson-video-*"+filepath.Ext(file.Filename))
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("lessons/%d/%s%s", lessonID, uuid.New().String(), filepath.Ext(file.Filename))
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = detectedType
	}

	_, err = s.client.FPutObject(ctx, s.cfg.MinioBucket, objectKey, tmp.Name(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	lesson.VideoObjectKey = objectKey
	if lesson.DurationSeconds == 0 {
		if duration, err := probeDurationSeconds(tmp.Name()); err != nil {
			logger.Log.Warn("could not probe video duration",
				zap.Uint("lessonId", lessonID), zap.Error(err))
		} else {
			lesson.DurationSeconds = duration
		}
	}

	if err := s.lessons.Save(lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

func probeDurationSeconds(path string) (int, error) {
	jsonOutput, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, err
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(duration)), nil
}
