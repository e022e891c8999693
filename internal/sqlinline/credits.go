package sqlinline

const QSelectCredits = `--sql 7b1f42d6-9c1e-4a8e-b3a1-2f6d9c0e4a11
select user_id, image_generation_count, model_training_count, updated_at
from credits
where user_id = $1::uuid;
`

// Conditional decrements: zero rows means the counter was already exhausted
// (or the ledger row is missing), so the caller must reject the submission.

const QConsumeImageCredit = `--sql 3e8a51c0-77d4-4d2b-9a63-0b1f2e8c5d22
update credits
set image_generation_count = image_generation_count - 1,
    updated_at = now()
where user_id = $1::uuid
  and image_generation_count > 0
returning image_generation_count;
`

const QConsumeTrainingCredit = `--sql 9f4c6a2e-1b5d-4e7f-8c09-d3a7b6e1f033
update credits
set model_training_count = model_training_count - 1,
    updated_at = now()
where user_id = $1::uuid
  and model_training_count > 0
returning model_training_count;
`

const QRefundTrainingCredit = `--sql c2d75e18-4f3a-46b9-a0e2-8b61c9d4f344
update credits
set model_training_count = model_training_count + 1,
    updated_at = now()
where user_id = $1::uuid
returning model_training_count;
`

const QRefundImageCredit = `--sql 6a3e91d5-0b7c-4f28-9e64-d1c8f5a2b466
update credits
set image_generation_count = image_generation_count + 1,
    updated_at = now()
where user_id = $1::uuid
returning image_generation_count;
`

const QGrantCredits = `--sql 5a9e03b7-6c2f-41d8-bf54-7e0a1d8c2b55
insert into credits(user_id, image_generation_count, model_training_count, updated_at)
values ($1::uuid, $2::int, $3::int, now())
on conflict (user_id) do update
set image_generation_count = credits.image_generation_count + excluded.image_generation_count,
    model_training_count   = credits.model_training_count + excluded.model_training_count,
    updated_at             = now()
returning image_generation_count, model_training_count;
`

const QSetCredits = `--sql 1d6b82f4-0a9c-4c37-9e18-3f5d7a2e6c66
insert into credits(user_id, image_generation_count, model_training_count, updated_at)
values ($1::uuid, $2::int, $3::int, now())
on conflict (user_id) do update
set image_generation_count = excluded.image_generation_count,
    model_training_count   = excluded.model_training_count,
    updated_at             = now()
returning image_generation_count, model_training_count;
`

const QSelectUserIDByEmail = `--sql e7f31a85-2d4b-49c6-8a07-b9c0e5d1a477
select id from auth.users where lower(email) = lower($1::text);
`

const QSelectUserEmail = `--sql 4b0d9c3e-7a61-4f25-b8d0-6e2c5a9f1e88
select email from auth.users where id = $1::uuid;
`
