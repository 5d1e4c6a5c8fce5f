package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

// SampleImageURLs feed the sample attachments when seeding with files.
var SampleImageURLs = []string{
	"https://picsum.photos/id/237/600/400.jpg",
	"https://picsum.photos/id/238/600/400.jpg",
	"https://picsum.photos/id/239/600/400.jpg",
	"https://picsum.photos/id/240/600/400.jpg",
	"https://picsum.photos/id/241/600/400.webp",
}

// Seeder fills an empty database with base accounts and, outside
// production, sample posts.
type Seeder struct {
	members  *MemberService
	posts    *PostService
	comments *CommentService
	genFiles *GenFileService
	stage    *genfile.Materializer
	// ImageURLs overrides SampleImageURLs.
	ImageURLs []string
}

func NewSeeder(members *MemberService, posts *PostService, comments *CommentService, genFiles *GenFileService, stage *genfile.Materializer) *Seeder {
	return &Seeder{members: members, posts: posts, comments: comments, genFiles: genFiles, stage: stage, ImageURLs: SampleImageURLs}
}

// Run seeds members, then sample content unless prod is set. withFiles also
// downloads sample attachments. Each stage is skipped when its table already has rows.
func (s *Seeder) Run(ctx context.Context, prod, withFiles bool) error {
	n, err := s.members.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := s.seedMembers(ctx, prod); err != nil {
			return err
		}
	}
	if prod {
		return nil
	}

	var posts int64
	if err := s.posts.db.WithContext(ctx).Model(&models.Post{}).Count(&posts).Error; err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}
	return s.seedPosts(ctx, withFiles)
}

func (s *Seeder) seedMembers(ctx context.Context, prod bool) error {
	type seedMember struct{ username, nickname string }
	list := []seedMember{{"system", "System"}, {"admin", "Admin"}}
	if !prod {
		for i := 1; i <= 6; i++ {
			list = append(list, seedMember{fmt.Sprintf("user%d", i), fmt.Sprintf("User%d", i)})
		}
	}
	for _, m := range list {
		var err error
		if prod {
			_, err = s.members.Join(ctx, m.username, "1234", m.nickname, "")
		} else {
			// API key equals the username so sample requests can authenticate easily.
			_, err = s.members.join(ctx, m.username, "1234", m.nickname, "", m.username)
		}
		if err != nil {
			return fmt.Errorf("seed member %s: %w", m.username, err)
		}
	}
	utils.Logger.Info("seeded members", zap.Int("count", len(list)))
	return nil
}

type samplePost struct {
	author            string
	title, content    string
	published, listed bool
	comments          [][2]string
}

func (s *Seeder) seedPosts(ctx context.Context, withFiles bool) error {
	samples := []samplePost{
		{"user1", "Anyone for football?", "We need 22 players by 14:00.", true, true,
			[][2]string{{"user2", "Me!"}, {"user3", "Count me in."}}},
		{"user1", "Anyone for volleyball?", "We need 12 players by 15:00.", true, true,
			[][2]string{{"user4", "Me! I am good at volleyball."}}},
		{"user2", "Anyone for basketball?", "We need 10 players by 16:00.", true, true, nil},
		{"user3", "Anyone for kickball?", "We need 14 players by 17:00.", true, true, nil},
		{"user4", "Anyone for dodgeball?", "We need 18 players by 18:00.", true, true, nil},
		{"user4", "Kickball at night?", "We need 18 players by 22:00.", false, false, nil},
		{"user4", "Kickball at 1 am?", "We need 17 players by 1 am.", true, false, nil},
		{"user4", "Kickball at 3 am?", "We need 19 players by 3 am.", false, true, nil},
		{"user4", "Anyone for table tennis?", "Table tennis comes highly recommended.", true, true, nil},
		{"user4", "Anyone for tennis?", "Tennis comes highly recommended.", true, true, nil},
	}
	for i := 11; i <= 100; i++ {
		samples = append(samples, samplePost{"user5", fmt.Sprintf("Test post %d", i), fmt.Sprintf("Test post %d content", i), i%3 != 0, i%4 != 0, nil})
	}
	for i := 101; i <= 200; i++ {
		samples = append(samples, samplePost{"user6", fmt.Sprintf("Test post %d", i), fmt.Sprintf("Test post %d content", i), i%5 != 0, i%6 != 0, nil})
	}

	members := map[string]*models.Member{}
	author := func(username string) (*models.Member, error) {
		if m, ok := members[username]; ok {
			return m, nil
		}
		m, err := s.members.FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("seed member %s missing", username)
		}
		members[username] = m
		return m, nil
	}

	var withAttachments []*models.Post
	for i, sp := range samples {
		a, err := author(sp.author)
		if err != nil {
			return err
		}
		p, err := s.posts.Write(ctx, a, sp.title, sp.content, sp.published, sp.listed)
		if err != nil {
			return err
		}
		for _, c := range sp.comments {
			ca, err := author(c[0])
			if err != nil {
				return err
			}
			if _, err := s.comments.Write(ctx, ca, p, c[1]); err != nil {
				return err
			}
		}
		if i == 8 || i == 9 {
			withAttachments = append(withAttachments, p)
		}
	}
	utils.Logger.Info("seeded posts", zap.Int("count", len(samples)))

	if withFiles {
		s.seedFiles(ctx, withAttachments)
	}
	return nil
}

// seedFiles exercises every slot operation on the sample posts. Download
// failures are logged and skipped so seeding works offline.
func (s *Seeder) seedFiles(ctx context.Context, posts []*models.Post) {
	if len(posts) == 0 || len(s.ImageURLs) == 0 {
		return
	}
	fetch := func(i int) string {
		u := s.ImageURLs[i%len(s.ImageURLs)]
		path, err := s.stage.Download(ctx, u, true)
		if err != nil {
			utils.Logger.Warn("seed download failed", zap.String("url", u), zap.Error(err))
			return ""
		}
		return path
	}
	warn := func(op string, err error) {
		if err != nil {
			utils.Logger.Warn("seed genfile failed", zap.String("op", op), zap.Error(err))
		}
	}

	p := posts[0]
	_, err := s.genFiles.Add(ctx, p, models.GenFileTypeAttachment, fetch(0))
	warn("add", err)
	_, err = s.genFiles.Add(ctx, p, models.GenFileTypeAttachment, fetch(1))
	warn("add", err)
	warn("delete", s.genFiles.DeleteSlot(ctx, p, models.GenFileTypeAttachment, 2))
	_, _, err = s.genFiles.Put(ctx, p, models.GenFileTypeAttachment, 3, fetch(2))
	warn("put", err)
	_, err = s.genFiles.Add(ctx, p, models.GenFileTypeThumbnail, fetch(3))
	warn("add", err)
	_, err = s.genFiles.ModifySlot(ctx, p, models.GenFileTypeThumbnail, 1, fetch(4))
	warn("modify", err)

	if len(posts) > 1 {
		var staged []string
		for i := range s.ImageURLs {
			staged = append(staged, fetch(i))
		}
		_, err = s.genFiles.AddMany(ctx, posts[1], models.GenFileTypeAttachment, staged)
		warn("addMany", err)
	}
}
