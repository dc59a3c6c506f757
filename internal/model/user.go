package model

import "time"

// User represents an account stored in the `users` table.  Only
// accounts with role "admin" are read by this application, to allow
// named administrators besides the shared admin password.
//
// Fields:
//  ID           – primary key identifier of the user.
//  EnrolmentNo  – enrolment number for student accounts (nullable, unique).
//  Name         – display name.
//  Email        – unique email address (nullable).
//  PasswordHash – bcrypt hashed password.
//  Role         – "admin" or "student".
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    EnrolmentNo  *string   // users.enrolment_no (nullable)
    Name         string    // users.name
    Email        *string   // users.email (nullable)
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    CreatedAt    time.Time // users.created_at
}

// Roles stored in users.role.
const (
    RoleAdmin   = "admin"
    RoleStudent = "student"
)
