// Command seed-demo provisions a working review board: roles, accounts
// for every workflow role, and a small questionnaire with a conditional
// branch. Safe to re-run; existing rows are reused.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"
	"irb-review-api/utils"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitDB()

	var (
		password  string
		boardName string
	)
	flag.StringVar(&password, "password", "ChangeMe123!", "password for every seeded account")
	flag.StringVar(&boardName, "board-name", "Institutional Review Board", "name of the seeded board")
	flag.Parse()

	if ok, reason := utils.ValidatePassword(password); !ok {
		log.Fatalf("seed password rejected: %s", reason)
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		log.Fatalf("failed to hash seed password: %v", err)
	}

	db := config.DB

	seedRoles(db)

	users := map[string]models.User{
		"admin":       seedUser(db, "admin@example.org", "Alice", "Admin", models.RoleAdmin, hashed),
		"coordinator": seedUser(db, "coordinator@example.org", "Carol", "Coordinator", models.RoleStaff, hashed),
		"main":        seedUser(db, "main.reviewer@example.org", "Martin", "Mainly", models.RoleStaff, hashed),
		"associate1":  seedUser(db, "associate1@example.org", "Ana", "Associate", models.RoleStaff, hashed),
		"associate2":  seedUser(db, "associate2@example.org", "Arun", "Associate", models.RoleStaff, hashed),
		"stats":       seedUser(db, "statistician@example.org", "Sam", "Stats", models.RoleStaff, hashed),
		"researcher":  seedUser(db, "researcher@example.org", "Rita", "Researcher", models.RoleResearcher, hashed),
	}

	board := seedBoard(db, boardName)

	seedMember(db, board.BoardID, users["coordinator"].UserID, models.BoardRoleCoordinator)
	seedMember(db, board.BoardID, users["main"].UserID, models.BoardRoleMainReviewer)
	seedMember(db, board.BoardID, users["associate1"].UserID, models.BoardRoleAssociateReviewer)
	seedMember(db, board.BoardID, users["associate2"].UserID, models.BoardRoleAssociateReviewer)
	seedMember(db, board.BoardID, users["stats"].UserID, models.BoardRoleStatistician)

	overview := seedSection(db, board.BoardID, "Study Overview", "study-overview", 1)
	participants := seedSection(db, board.BoardID, "Participants and Consent", "participants-consent", 2)

	seedQuestion(db, overview.SectionID, models.Question{
		QuestionText:         "Summarize the study objectives and design",
		QuestionType:         models.QuestionTypeTextarea,
		IsRequired:           true,
		DisplayOrder:         1,
		SubmissionTypeFilter: models.FilterBoth,
	}, nil)

	humanSubjects := seedQuestion(db, overview.SectionID, models.Question{
		QuestionText:         "Does the study involve human participants?",
		QuestionType:         models.QuestionTypeRadio,
		IsRequired:           true,
		DisplayOrder:         2,
		SubmissionTypeFilter: models.FilterBoth,
	}, []string{"Yes", "No"})

	consent := seedQuestion(db, participants.SectionID, models.Question{
		QuestionText:         "Describe the informed consent process",
		QuestionType:         models.QuestionTypeTextarea,
		IsRequired:           true,
		DisplayOrder:         1,
		SubmissionTypeFilter: models.FilterStandard,
	}, nil)

	enrollment := seedQuestion(db, participants.SectionID, models.Question{
		QuestionText:         "Planned number of participants",
		QuestionType:         models.QuestionTypeNumber,
		IsRequired:           true,
		DisplayOrder:         2,
		SubmissionTypeFilter: models.FilterBoth,
	}, nil)

	seedCondition(db, consent.QuestionID, humanSubjects.QuestionID, models.OperatorEquals, "Yes")
	seedCondition(db, enrollment.QuestionID, humanSubjects.QuestionID, models.OperatorEquals, "Yes")

	fmt.Printf("Seeded board %q (board_id=%d) with %d accounts, password %q\n",
		board.BoardName, board.BoardID, len(users), password)
	fmt.Println("Accounts: admin@example.org, coordinator@example.org, main.reviewer@example.org,")
	fmt.Println("          associate1@example.org, associate2@example.org, statistician@example.org,")
	fmt.Println("          researcher@example.org")
}

func seedRoles(db *gorm.DB) {
	roles := map[int]string{
		models.RoleResearcher: "researcher",
		models.RoleStaff:      "staff",
		models.RoleAdmin:      "admin",
	}
	for id, name := range roles {
		var existing models.Role
		if err := db.Where("role_id = ?", id).First(&existing).Error; err == nil {
			continue
		}
		now := time.Now()
		if err := db.Create(&models.Role{RoleID: id, Role: name, CreateAt: &now}).Error; err != nil {
			log.Fatalf("failed to seed role %s: %v", name, err)
		}
	}
}

func seedUser(db *gorm.DB, email, first, last string, roleID int, hashed string) models.User {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		return user
	}
	now := time.Now()
	user = models.User{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  hashed,
		RoleID:    roleID,
		IsActive:  true,
		CreateAt:  &now,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to seed user %s: %v", email, err)
	}
	return user
}

func seedBoard(db *gorm.DB, name string) models.Board {
	var board models.Board
	if err := db.Where("board_name = ? AND delete_at IS NULL", name).First(&board).Error; err == nil {
		return board
	}
	now := time.Now()
	board = models.Board{
		BoardName: name,
		BoardType: models.BoardTypeIRB,
		IsActive:  true,
		CreateAt:  &now,
	}
	if err := db.Create(&board).Error; err != nil {
		log.Fatalf("failed to seed board: %v", err)
	}
	return board
}

func seedMember(db *gorm.DB, boardID, userID int, role models.BoardRole) {
	var existing models.BoardMember
	if err := db.Where("board_id = ? AND user_id = ? AND role = ?", boardID, userID, role).
		First(&existing).Error; err == nil {
		return
	}
	member := models.BoardMember{BoardID: boardID, UserID: userID, Role: role, CreatedAt: time.Now()}
	if err := db.Create(&member).Error; err != nil {
		log.Fatalf("failed to seed board member: %v", err)
	}
}

func seedSection(db *gorm.DB, boardID int, name, slug string, order int) models.Section {
	var section models.Section
	if err := db.Where("board_id = ? AND slug = ?", boardID, slug).First(&section).Error; err == nil {
		return section
	}
	now := time.Now()
	section = models.Section{
		BoardID:      boardID,
		SectionName:  name,
		Slug:         slug,
		DisplayOrder: order,
		CreateAt:     &now,
	}
	if err := db.Create(&section).Error; err != nil {
		log.Fatalf("failed to seed section %s: %v", name, err)
	}
	return section
}

func seedQuestion(db *gorm.DB, sectionID int, q models.Question, options []string) models.Question {
	var existing models.Question
	if err := db.Where("section_id = ? AND question_text = ? AND delete_at IS NULL", sectionID, q.QuestionText).
		First(&existing).Error; err == nil {
		return existing
	}
	now := time.Now()
	q.SectionID = sectionID
	q.IsActive = true
	q.CreateAt = &now
	if len(options) > 0 {
		if err := q.SetOptionList(options); err != nil {
			log.Fatalf("failed to encode options for %q: %v", q.QuestionText, err)
		}
	}
	if err := db.Create(&q).Error; err != nil {
		log.Fatalf("failed to seed question %q: %v", q.QuestionText, err)
	}
	return q
}

func seedCondition(db *gorm.DB, questionID, dependsOn int, op models.ConditionOperator, value string) {
	var existing models.QuestionCondition
	if err := db.Where("question_id = ? AND depends_on_question_id = ?", questionID, dependsOn).
		First(&existing).Error; err == nil {
		return
	}
	condition := models.QuestionCondition{
		QuestionID:          questionID,
		DependsOnQuestionID: dependsOn,
		Operator:            op,
		CompareValue:        value,
		CreatedAt:           time.Now(),
	}
	if err := db.Create(&condition).Error; err != nil {
		log.Fatalf("failed to seed condition: %v", err)
	}
}
