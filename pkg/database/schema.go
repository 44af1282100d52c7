package database

import (
	"context"
	"fmt"
)

var schema = []struct {
	name  string
	query string
}{
	{"research_jobs", `
		CREATE TABLE IF NOT EXISTS research_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			query TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			summary TEXT,
			report TEXT,
			output_path TEXT,
			error TEXT,
			state JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"research_logs", `
		CREATE TABLE IF NOT EXISTS research_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			percent INT,
			metadata JSONB
		)`},
	{"research_findings", `
		CREATE TABLE IF NOT EXISTS research_findings (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
			position INT NOT NULL,
			phase TEXT NOT NULL,
			question TEXT NOT NULL,
			content TEXT NOT NULL,
			documents JSONB,
			search_results JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (job_id, phase)
		)`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title TEXT NOT NULL DEFAULT 'New Conversation',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)",
	"CREATE INDEX IF NOT EXISTS idx_research_findings_job_id ON research_findings(job_id, position)",
	"CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)",
	"CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)",
}

// InitSchema creates the job, log, finding and chat tables.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, t := range schema {
		if _, err := db.Pool.Exec(ctx, t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.Pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
