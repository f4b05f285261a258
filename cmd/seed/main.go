// Package main loads demo users, events, registrations and merit records.
// It goes through the same services as the API so seeded data obeys the
// admission and ledger rules.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meritrack/backend/config"
	"github.com/meritrack/backend/internal/auth"
	"github.com/meritrack/backend/internal/events"
	"github.com/meritrack/backend/internal/merits"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/internal/registrations"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
	"github.com/meritrack/backend/pkg/utils"
)

type seedConfig struct {
	AdminEmail    string `env:"SEED_ADMIN_EMAIL" envDefault:"admin@upm.edu.my"`
	AdminPassword string `env:"SEED_ADMIN_PASSWORD,required"`
	Reset         bool   `env:"SEED_RESET" envDefault:"false"`
}

type studentSeed struct {
	name, email, studentID, faculty, program string
	year                                     int
	enrolled                                 string
}

var studentSeeds = []studentSeed{
	{"Ahmad Hafiz bin Abdullah", "ahmad.hafiz@student.upm.edu.my", "S12345678", "Faculty of Engineering", "Software Engineering", 3, "2022-09-01"},
	{"Siti Nurhaliza binti Hassan", "siti.nurhaliza@student.upm.edu.my", "S23456789", "Faculty of Computer Science", "Computer Science", 2, "2023-09-01"},
	{"Muhammad Azmi bin Yusof", "azmi.yusof@student.upm.edu.my", "S34567890", "Faculty of Engineering", "Electrical Engineering", 4, "2021-09-01"},
	{"Nurul Izzah binti Rahman", "nurul.izzah@student.upm.edu.my", "S45678901", "Faculty of Science", "Biotechnology", 1, "2024-09-01"},
	{"Lee Wei Ming", "lee.weiming@student.upm.edu.my", "S56789012", "Faculty of Computer Science", "Information Technology", 3, "2022-09-01"},
}

type eventSeed struct {
	title, description, timeOfDay, location, organizer string
	category                                          models.Category
	points, capacity, offsetDays                      int
	completed                                         bool
}

var eventSeeds = []eventSeed{
	{"UPM Innovation Summit 2025", "Annual innovation summit showcasing student research and projects.", "09:00 AM - 5:00 PM", "Dewan Besar, Canselori Putra", "Office of Innovation and Commercialization", models.CategoryUniversity, 20, 500, 7, false},
	{"Engineering Faculty Career Fair", "Meet with top employers from engineering industries.", "10:00 AM - 4:00 PM", "Faculty of Engineering Hall", "Faculty of Engineering", models.CategoryFaculty, 15, 300, 14, false},
	{"Hackathon 2025: Code for Change", "48-hour coding marathon to develop solutions for social good.", "Friday 6:00 PM - Sunday 6:00 PM", "Computer Science Lab, Block A", "Computer Science Students Association", models.CategoryCollege, 12, 100, 21, false},
	{"Photography Club Workshop: Portrait Lighting", "Learn professional portrait lighting techniques.", "2:00 PM - 5:00 PM", "Photography Club Studio, Kolej Tun Dr. Ismail", "UPM Photography Club", models.CategoryClub, 8, 3, 1, false},
	{"Research Methodology Seminar", "Research methodologies and academic writing for final year students.", "9:00 AM - 12:00 PM", "Bilik Seminar, Perpustakaan Sultanah Zanariah", "Graduate School", models.CategoryUniversity, 10, 150, 10, false},
	{"UPM Sports Day 2024", "Annual inter-faculty sports competition.", "8:00 AM - 6:00 PM", "UPM Sports Complex", "Sports and Recreation Unit", models.CategoryUniversity, 15, 1000, -30, true},
	{"Leadership Training Camp", "Three-day leadership development camp for student leaders.", "All Day", "Port Dickson, Negeri Sembilan", "Student Affairs Division", models.CategoryUniversity, 25, 80, -7, true},
	{"Charity Run for Education", "10km charity run to raise funds for underprivileged students.", "6:00 AM - 10:00 AM", "UPM Campus Loop", "UPM Volunteer Club", models.CategoryClub, 10, 500, -37, true},
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	seed, err := env.ParseAs[seedConfig]()
	if err != nil {
		logger.Fatal("seed config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	if seed.Reset {
		if err := reset(ctx, pool); err != nil {
			logger.Fatal("reset", zap.Error(err))
		}
		logger.Info("existing data removed")
	}

	users := auth.NewRepository(pool)
	if _, err := users.GetByEmail(ctx, seed.AdminEmail); err == nil {
		logger.Info("database already seeded; set SEED_RESET=true to reseed", zap.String("admin", seed.AdminEmail))
		return
	} else if !errors.Is(err, apperr.ErrNotFound) {
		logger.Fatal("lookup admin", zap.Error(err))
	}

	if err := run(ctx, pool, users, seed, logger); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
}

func run(ctx context.Context, pool *pgxpool.Pool, users *auth.Repository, seed seedConfig, logger *zap.Logger) error {
	hash, err := utils.HashPassword(seed.AdminPassword)
	if err != nil {
		return err
	}
	admin := &models.User{Email: seed.AdminEmail, Name: "Admin User", EmailVerified: true, Role: models.RoleAdmin, PasswordHash: &hash}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}

	for _, s := range studentSeeds {
		enrolled, _ := time.Parse(models.DateLayout, s.enrolled)
		u := &models.User{
			Email: s.email, Name: s.name, EmailVerified: true, Role: models.RoleStudent,
			StudentID: &s.studentID, Faculty: &s.faculty, Program: &s.program, Year: &s.year, EnrollmentDate: &enrolled,
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
	}
	studentList, err := users.ListStudents(ctx)
	if err != nil {
		return err
	}
	logger.Info("users created", zap.Int("students", len(studentList)))

	eventRepo := events.NewRepository(pool)
	admission := registrations.NewService(registrations.NewRepository(pool), nil, logger)
	meritSvc := merits.NewService(merits.NewRepository(pool), nil, nil, merits.Options{}, logger)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i, es := range eventSeeds {
		ev := &models.Event{
			Title: es.title, Description: es.description, Date: today.AddDate(0, 0, es.offsetDays),
			Time: es.timeOfDay, Location: es.location, Organizer: es.organizer,
			Category: es.category, Points: es.points, Capacity: es.capacity, Status: models.EventStatusUpcoming,
		}
		if err := eventRepo.Create(ctx, ev); err != nil {
			return err
		}

		attendees := studentList
		if !es.completed {
			// Upcoming events get a rotating subset; the small workshop fills up and waitlists.
			n := 2 + i%3
			if ev.Capacity < len(studentList) {
				n = len(studentList)
			}
			attendees = rotate(studentList, i)[:min(n, len(studentList))]
		}
		ids := make([]uuid.UUID, 0, len(attendees))
		for _, st := range attendees {
			if _, err := admission.Register(ctx, ev.ID, st.ID); err != nil {
				return err
			}
			ids = append(ids, st.ID)
		}
		if !es.completed {
			continue
		}

		if _, err := admission.MarkAttendance(ctx, ev.ID, ids, admin.ID); err != nil {
			return err
		}
		ev.Status = models.EventStatusCompleted
		if err := eventRepo.Update(ctx, ev); err != nil {
			return err
		}
	}

	// A few manual awards outside events.
	for i, st := range studentList {
		if i%2 != 0 {
			continue
		}
		if _, err := meritSvc.Award(ctx, merits.AwardInput{
			StudentID:   st.ID,
			Category:    models.CategoryCollege,
			Points:      merits.DefaultPoints(models.CategoryCollege, models.MeritOrganizer),
			Description: "Residential college committee",
			MeritType:   models.MeritOrganizer,
			CreatedBy:   admin.ID,
		}); err != nil {
			return err
		}
	}

	logger.Info("seed complete", zap.Int("events", len(eventSeeds)), zap.String("admin", admin.Email))
	return nil
}

func rotate(list []models.User, by int) []models.User {
	if len(list) == 0 {
		return list
	}
	by %= len(list)
	out := make([]models.User, 0, len(list))
	out = append(out, list[by:]...)
	return append(out, list[:by]...)
}

func reset(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE reports, notifications, merit_records, event_registrations, events, users RESTART IDENTITY CASCADE`)
	return database.MapError(err)
}

func newLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
