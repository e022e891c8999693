package sqlinline

const QInsertModel = `--sql 84c2f1d9-3e6a-4b05-9d72-a1f8c4e0b588
insert into models(
  user_id,
  model_id,
  model_name,
  gender,
  training_status,
  trigger_word,
  training_steps,
  training_id,
  created_at,
  updated_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::int, $8::text, now(), now())
returning id;
`

const QSelectModelsByUser = `--sql 2f9d6b34-8a1c-4e57-b690-c5d2e7f0a699
select id, user_id, model_id, model_name, gender, training_status, trigger_word,
       training_steps, training_id, training_time, version, created_at, updated_at,
       count(*) over() as total
from models
where user_id = $1::uuid
order by created_at desc;
`

const QSelectModelForUser = `--sql 6e0a84c7-5b2d-4f19-a3c8-d7e1f6b0c7aa
select id, model_id, version
from models
where id = $1::bigint and user_id = $2::uuid;
`

const QSelectModelName = `--sql f1b64e09-8d3a-4c52-b7e1-0a9c6d4f2e77
select model_name
from models
where user_id = $1::uuid and model_id = $2::text;
`

const QDeleteModel = `--sql b3f70d2a-9c4e-41b6-8e53-f0a6d1c8e2bb
delete from models
where id = $1::bigint and user_id = $2::uuid;
`

// Status updates are scoped by (user_id, model_id) and carry a rank guard so a
// forged or stale delivery can neither touch another user's row nor move a job
// backward. Equal ranks pass: replaying a terminal delivery is a pure overwrite.

const QUpdateModelSucceeded = `--sql 0c5e92b8-7d1f-4a63-95e0-2b8f4c7d9ecc
update models
set training_status = $3::text,
    training_time   = $4::double precision,
    version         = $5::text,
    updated_at      = now()
where user_id = $1::uuid
  and model_id = $2::text
  and (case training_status
         when 'starting' then 1
         when 'processing' then 2
         when 'succeeded' then 3
         when 'failed' then 3
         when 'canceled' then 3
         else 0
       end)
      <=
      (case $3::text
         when 'starting' then 1
         when 'processing' then 2
         when 'succeeded' then 3
         when 'failed' then 3
         when 'canceled' then 3
         else 0
       end);
`

const QUpdateModelStatus = `--sql d8a1c4f6-2e9b-4075-b1d7-6c3e0f5a8ddd
update models
set training_status = $3::text,
    updated_at      = now()
where user_id = $1::uuid
  and model_id = $2::text
  and (case training_status
         when 'starting' then 1
         when 'processing' then 2
         when 'succeeded' then 3
         when 'failed' then 3
         when 'canceled' then 3
         else 0
       end)
      <=
      (case $3::text
         when 'starting' then 1
         when 'processing' then 2
         when 'succeeded' then 3
         when 'failed' then 3
         when 'canceled' then 3
         else 0
       end);
`
