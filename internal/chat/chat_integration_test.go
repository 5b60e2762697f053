package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/db"
	"github.com/tutorlink/tutorlink-backend/internal/models"
)

// These tests need a real Postgres because the service leans on the unique
// pair index, duplicate-key translation and SQL-side counter increments.
// Set TEST_DB_DSN to run them.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping database integration tests")
	}

	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.TeacherProfile{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fixture struct {
	db       *gorm.DB
	convs    *ConversationService
	msgs     *MessageService
	student  ParticipantRef
	teacher  ParticipantRef
	studentU models.User
	teacherU models.User
	profile  models.TeacherProfile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testDB(t)

	student := models.User{
		Name:     "Student " + uuid.New().String()[:8],
		Email:    fmt.Sprintf("student-%s@example.test", uuid.New()),
		Password: "x",
		Role:     models.RoleStudent,
	}
	teacherUser := models.User{
		Name:     "Teacher " + uuid.New().String()[:8],
		Email:    fmt.Sprintf("teacher-%s@example.test", uuid.New()),
		Password: "x",
		Role:     models.RoleTeacher,
	}
	if err := gdb.Create(&student).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}
	if err := gdb.Create(&teacherUser).Error; err != nil {
		t.Fatalf("create teacher user: %v", err)
	}

	profile := models.TeacherProfile{
		UserID:      teacherUser.ID,
		DisplayName: "Prof " + teacherUser.Name,
		HourlyRate:  50000,
	}
	if err := gdb.Create(&profile).Error; err != nil {
		t.Fatalf("create teacher profile: %v", err)
	}

	convs := NewConversationService(gdb)
	return &fixture{
		db:       gdb,
		convs:    convs,
		msgs:     NewMessageService(gdb, convs),
		student:  ParticipantRef{ID: student.ID, Kind: models.KindStudent},
		teacher:  ParticipantRef{ID: profile.ID, Kind: models.KindTeacherProfile},
		studentU: student,
		teacherU: teacherUser,
		profile:  profile,
	}
}

func (f *fixture) initiate(t *testing.T, in InitiateInput) *models.Conversation {
	t.Helper()
	conv, _, err := f.convs.InitiateOrGet(context.Background(), f.student.ID, in)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return conv
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Conversation {
	t.Helper()
	var conv models.Conversation
	if err := f.db.First(&conv, "id = ?", id).Error; err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	return &conv
}

func TestInitiateOrGetIsIdempotentPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, isNew, err := f.convs.InitiateOrGet(ctx, f.student.ID, InitiateInput{TeacherProfileID: f.profile.ID})
	if err != nil {
		t.Fatalf("first initiate: %v", err)
	}
	if !isNew {
		t.Fatal("first initiation should create")
	}

	second, isNew, err := f.convs.InitiateOrGet(ctx, f.student.ID, InitiateInput{TeacherProfileID: f.profile.ID})
	if err != nil {
		t.Fatalf("second initiate: %v", err)
	}
	if isNew {
		t.Fatal("second initiation must reuse")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same conversation, got %s then %s", first.ID, second.ID)
	}
}

func TestInitiateRejectsSelfConversation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.convs.InitiateOrGet(context.Background(), f.teacherU.ID, InitiateInput{TeacherProfileID: f.profile.ID})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for self chat, got %v", err)
	}
}

func TestInitiateUnknownTeacherIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.convs.InitiateOrGet(context.Background(), f.student.ID, InitiateInput{TeacherProfileID: uuid.New()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendUpdatesUnreadAndLastMessageCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	for i := 0; i < 3; i++ {
		_, err := f.msgs.Append(ctx, AppendInput{
			ConversationID: conv.ID,
			Sender:         f.student,
			Content:        fmt.Sprintf("hello %d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got := f.reload(t, conv.ID)
	if got.UnreadTeacher != 3 {
		t.Fatalf("expected unread_teacher 3, got %d", got.UnreadTeacher)
	}
	if got.UnreadStudent != 0 {
		t.Fatalf("expected unread_student 0, got %d", got.UnreadStudent)
	}
	if got.LastMessageContent != "hello 2" {
		t.Fatalf("expected last message cache 'hello 2', got %q", got.LastMessageContent)
	}
	if got.LastMessageSenderID == nil || *got.LastMessageSenderID != f.student.ID {
		t.Fatal("last message sender not mirrored")
	}
	if got.LastMessageAt == nil {
		t.Fatal("last_message_at not mirrored")
	}
}

func TestConcurrentAppendsNeverLoseUnreadIncrements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.msgs.Append(ctx, AppendInput{
				ConversationID: conv.ID,
				Sender:         f.student,
				Content:        fmt.Sprintf("racer %d", n),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	if got := f.reload(t, conv.ID); got.UnreadTeacher != 2 {
		t.Fatalf("expected unread_teacher 2 after two concurrent appends, got %d", got.UnreadTeacher)
	}
}

func TestMarkReadZeroesOnlyOwnCounterAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	// One in each direction.
	if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: f.student, Content: "from student"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: f.teacher, Content: "from teacher"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.convs.MarkRead(ctx, conv.ID, f.teacher); err != nil {
			t.Fatalf("mark read call %d: %v", i+1, err)
		}
	}

	got := f.reload(t, conv.ID)
	if got.UnreadTeacher != 0 {
		t.Fatalf("expected unread_teacher 0, got %d", got.UnreadTeacher)
	}
	if got.UnreadStudent != 1 {
		t.Fatalf("student counter must be untouched, got %d", got.UnreadStudent)
	}
}

func TestPageReturnsChronologicalCompleteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := f.msgs.Append(ctx, AppendInput{
			ConversationID: conv.ID,
			Sender:         f.student,
			Content:        fmt.Sprintf("msg %d", i),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// Page 1 holds the newest 3, still in reading order.
	page1, total, err := f.msgs.Page(ctx, conv.ID, f.teacher, 1, 3)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if total != n {
		t.Fatalf("expected total %d, got %d", n, total)
	}
	if len(page1) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page1))
	}
	if page1[0].Content != "msg 4" || page1[2].Content != "msg 6" {
		t.Fatalf("unexpected page 1 window: %q .. %q", page1[0].Content, page1[2].Content)
	}
	for i := 1; i < len(page1); i++ {
		if page1[i].Seq <= page1[i-1].Seq {
			t.Fatal("messages within a page must be in ascending order")
		}
	}

	// Walking every page yields each message exactly once.
	seen := map[uuid.UUID]bool{}
	for p := 1; ; p++ {
		msgs, _, err := f.msgs.Page(ctx, conv.ID, f.teacher, p, 3)
		if err != nil {
			t.Fatalf("page %d: %v", p, err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct messages across pages, got %d", n, len(seen))
	}
}

func TestNonParticipantSeesNotFoundEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	stranger := ParticipantRef{ID: uuid.New(), Kind: models.KindStudent}

	if _, err := f.convs.GetByID(ctx, conv.ID, stranger); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID: expected not found, got %v", err)
	}
	if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: stranger, Content: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append: expected not found, got %v", err)
	}
	if _, _, err := f.msgs.Page(ctx, conv.ID, stranger, 1, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Page: expected not found, got %v", err)
	}

	// A missing conversation produces the same error shape.
	if _, err := f.convs.GetByID(ctx, uuid.New(), f.student); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: expected not found, got %v", err)
	}
}

func TestMarkSeenCountsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	for i := 0; i < 2; i++ {
		if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: f.student, Content: "unseen"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count, err := f.msgs.MarkSeen(ctx, conv.ID, f.teacher)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 messages flipped, got %d", count)
	}

	count, err = f.msgs.MarkSeen(ctx, conv.ID, f.teacher)
	if err != nil {
		t.Fatalf("mark seen again: %v", err)
	}
	if count != 0 {
		t.Fatalf("second pass must flip nothing, got %d", count)
	}
}

func TestSoftDeletedMessageLeavesPageAndCacheAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	msg, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: f.student, Content: "latest"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := f.msgs.SoftDeleteOne(ctx, msg.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := f.msgs.SoftDeleteOne(ctx, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("double delete: expected message not found, got %v", err)
	}

	msgs, total, err := f.msgs.Page(ctx, conv.ID, f.student, 1, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Fatalf("deleted message must not be listed, got total=%d len=%d", total, len(msgs))
	}

	// Cached preview is a display hint and stays as-is.
	if got := f.reload(t, conv.ID); got.LastMessageContent != "latest" {
		t.Fatalf("cache should be untouched, got %q", got.LastMessageContent)
	}
}

func TestReinitiateAfterSoftDeleteCreatesFreshConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})

	if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, Sender: f.student, Content: "before delete"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.convs.SoftDelete(ctx, conv.ID, f.student); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	fresh, isNew, err := f.convs.InitiateOrGet(ctx, f.student.ID, InitiateInput{TeacherProfileID: f.profile.ID})
	if err != nil {
		t.Fatalf("re-initiate after delete: %v", err)
	}
	if !isNew {
		t.Fatal("re-initiation after delete must create")
	}
	if fresh.ID == conv.ID {
		t.Fatal("expected a fresh conversation, not the deleted one")
	}
	if fresh.UnreadTeacher != 0 || fresh.LastMessageContent != "" {
		t.Fatalf("fresh conversation must start clean, got unread=%d last=%q", fresh.UnreadTeacher, fresh.LastMessageContent)
	}

	// The old history stays with the deleted conversation.
	msgs, total, err := f.msgs.Page(ctx, fresh.ID, f.student, 1, 10)
	if err != nil {
		t.Fatalf("page fresh conversation: %v", err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Fatalf("fresh conversation must have no messages, got total=%d len=%d", total, len(msgs))
	}
}

func TestContextOverwrittenWhilePrePurchaseLockedAfterPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := f.initiate(t, InitiateInput{
		TeacherProfileID: f.profile.ID,
		ContextID:        "booking-1",
		Title:            "Algebra",
	})

	// Pre-purchase re-initiation overwrites the snapshot.
	conv = f.initiate(t, InitiateInput{
		TeacherProfileID: f.profile.ID,
		ContextID:        "booking-2",
		Title:            "Calculus",
	})

	var current models.ConversationContext
	if err := json.Unmarshal(conv.ConsultancyContext, &current); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if current.ContextID != "booking-2" || current.Status != models.ContextPrePurchase {
		t.Fatalf("expected overwritten pre-purchase snapshot, got %+v", current)
	}

	var history []models.ConversationContext
	if err := json.Unmarshal(conv.Contexts, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history must keep every context, got %d", len(history))
	}

	if err := f.convs.MarkContextPurchased(ctx, conv.ID, "booking-2"); err != nil {
		t.Fatalf("mark purchased: %v", err)
	}

	got := f.reload(t, conv.ID)
	if err := json.Unmarshal(got.ConsultancyContext, &current); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if current.Status != models.ContextPurchased {
		t.Fatalf("expected purchased status, got %q", current.Status)
	}
}

func TestListForUserOrdersByActivityAndJoinsOtherSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A second teacher so the student has two inbox rows.
	otherUser := models.User{
		Name:     "Teacher Two",
		Email:    fmt.Sprintf("teacher2-%s@example.test", uuid.New()),
		Password: "x",
		Role:     models.RoleTeacher,
	}
	if err := f.db.Create(&otherUser).Error; err != nil {
		t.Fatalf("create second teacher: %v", err)
	}
	otherProfile := models.TeacherProfile{UserID: otherUser.ID, DisplayName: "Second Prof"}
	if err := f.db.Create(&otherProfile).Error; err != nil {
		t.Fatalf("create second profile: %v", err)
	}

	first := f.initiate(t, InitiateInput{TeacherProfileID: f.profile.ID})
	f.initiate(t, InitiateInput{TeacherProfileID: otherProfile.ID})

	// Activity in the first conversation moves it to the top.
	if _, err := f.msgs.Append(ctx, AppendInput{ConversationID: first.ID, Sender: f.student, Content: "bump"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	views, err := f.convs.ListForUser(ctx, f.student)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(views))
	}
	if views[0].ID != first.ID {
		t.Fatal("most recently active conversation must come first")
	}
	for _, v := range views {
		if v.Other.Kind != models.KindTeacherProfile || v.Other.Name == "" {
			t.Fatalf("inbox row missing the other participant's profile: %+v", v.Other)
		}
	}
}

func TestResolveMapsTeacherToProfileAndBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.convs.Resolve(ctx, f.teacherU.ID, string(models.RoleTeacher))
	if err != nil {
		t.Fatalf("resolve teacher: %v", err)
	}
	if ref.Kind != models.KindTeacherProfile || ref.ID != f.profile.ID {
		t.Fatalf("teacher must resolve to profile ref, got %+v", ref)
	}

	owner, err := f.convs.OwnerUserID(ctx, ref)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != f.teacherU.ID {
		t.Fatalf("expected owner %s, got %s", f.teacherU.ID, owner)
	}

	sref, err := f.convs.Resolve(ctx, f.student.ID, string(models.RoleStudent))
	if err != nil {
		t.Fatalf("resolve student: %v", err)
	}
	if sref.Kind != models.KindStudent || sref.ID != f.student.ID {
		t.Fatalf("student resolves to own id, got %+v", sref)
	}
}
